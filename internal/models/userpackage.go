package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	UserPackageStatusActive    = "active"
	UserPackageStatusExpired   = "expired"
	UserPackageStatusCancelled = "cancelled"
)

// UserPackage is one quota grant, created when a purchase completes.
// quota_used is the only field mutated after creation (plus status by the
// expiry sweep and the cancel path).
type UserPackage struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	PackageID   uuid.UUID
	QuotaUsed   int64
	QuotaTotal  int64
	ExpiresAt   *time.Time // nil = never expires
	Status      string
	PurchasedAt time.Time
}

// IsExpired reports whether the grant has passed its expiry, regardless of
// the stored status. The sweep corrects the stored status later for query
// efficiency; business logic must not trust the stored value alone.
func (p UserPackage) IsExpired() bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(time.Now())
}

func (p UserPackage) IsActive() bool {
	return p.Status == UserPackageStatusActive && !p.IsExpired()
}

func (p UserPackage) Remaining() int64 {
	return max(0, p.QuotaTotal-p.QuotaUsed)
}

func (p UserPackage) CanUse(amount int64) bool {
	return p.IsActive() && p.Remaining() >= amount
}
