package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PackageTypeMessages = "messages"
	PackageTypeAPICalls = "api_calls"
	PackageTypeStorage  = "storage"
)

// ServicePackage is a catalog entry for a purchasable quota bundle.
// Read-mostly: the settlement service only reads it, grants copy quota and
// duration at purchase time so later catalog edits never touch existing grants.
type ServicePackage struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Name        string
	Type        string
	Quota       int64
	Price       decimal.Decimal
	DurationDays *int32 // nil = unlimited duration
	Description string
	Features    []string
	IsActive    bool
}
