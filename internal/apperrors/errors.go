package apperrors

import (
	"errors"
	"strings"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInvalidStateTransition  = errors.New("transaction is not pending")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrReferenceCodeTaken      = errors.New("reference code already exists")
	ErrReferenceCodeGeneration = errors.New("reference code generation attempts exhausted")

	ErrPackageNotFound     = errors.New("service package not found")
	ErrPackageInactive     = errors.New("service package is not available")
	ErrUserPackageNotFound = errors.New("user package not found")
	ErrQuotaExceeded       = errors.New("not enough remaining quota")
)

// ValidationError carries the policy violations that stopped an operation
// before anything was persisted. Matched with errors.As.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}
