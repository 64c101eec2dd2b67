package settlement

import (
	"crypto/rand"
	"fmt"
)

const (
	referenceCodePrefix = "TXN"
	referenceCodeLength = 12

	// Attempts before giving up with ErrReferenceCodeGeneration. With a
	// 36^12 code space collisions mean something is badly wrong anyway.
	maxReferenceCodeAttempts = 5
)

const referenceCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewReferenceCode returns a candidate code like TXN4F7Q0ZK2M9XH.
// Uniqueness is the caller's problem: check against the ledger and back it
// with the unique constraint.
func NewReferenceCode() (string, error) {
	b := make([]byte, referenceCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error reading random bytes: %w", err)
	}

	for i := range b {
		b[i] = referenceCodeAlphabet[int(b[i])%len(referenceCodeAlphabet)]
	}

	return referenceCodePrefix + string(b), nil
}
