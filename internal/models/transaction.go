package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypePurchase   = "purchase"
	TransactionTypeRefund     = "refund"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// Metadata keys written by the settlement service
const (
	MetaKeyFee         = "fee"
	MetaKeyTotalAmount = "total_amount"
	MetaKeyPackageID   = "package_id"
	MetaKeyRejectedFor = "rejected_for"
)

// Transaction is a single append-only ledger entry. It is created pending and
// moves exactly once to completed, failed or cancelled. Rows are never
// deleted, they are the audit trail.
type Transaction struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	UserID        uuid.UUID
	Type          string
	Amount        decimal.Decimal
	Currency      string
	Status        string
	PaymentMethod *string
	PaymentInfo   Metadata
	ReferenceCode string
	Description   string
	ApprovedBy    *uuid.UUID // nil while pending; stays nil for system auto-approval
	ApprovedAt    *time.Time
	Metadata      Metadata
}

func (t Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// Credits increase the wallet balance when completed, debits decrease it.
func (t Transaction) IsCredit() bool {
	return t.Type == TransactionTypeDeposit || t.Type == TransactionTypeRefund
}
