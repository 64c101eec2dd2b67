package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Default wallet currency. Every wallet holds exactly one currency.
const DefaultCurrency = "VND"

// Wallet is the user's monetary balance. Created lazily with zero balance on
// first access and mutated only through the settlement service, so the
// balance never goes negative.
type Wallet struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UserID    uuid.UUID
	Balance   decimal.Decimal
	Currency  string
}
