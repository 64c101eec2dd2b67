package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ntduong/agentpay/internal/models"
)

// Storage aggregates repositories and owns the transactional boundary.
// Multi-row mutations (wallet + ledger, debit + grant) must run through InTx
// so they commit or roll back as one unit.
type Storage interface {
	Users() UserRepo
	Wallets() WalletRepo
	Transactions() TransactionRepo
	Packages() ServicePackageRepo
	UserPackages() UserPackageRepo
	Settings() SettingsRepo

	// InTx runs fn with a Storage bound to a single database transaction.
	// Commits when fn returns nil, rolls back otherwise.
	InTx(ctx context.Context, fn func(Storage) error) error
}

type UserRepo interface {
	// Create user
	// If the username is taken must return apperrors.ErrUserAlreadyExists
	Create(ctx context.Context, username string, hashedPassword string, isAdmin bool) (models.User, error)

	// Get user by id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
}

type WalletRepo interface {
	// GetOrCreate returns the user's wallet, creating it with zero balance on
	// first access. Safe under concurrent first access.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (models.Wallet, error)

	// Credit increases the balance by amount (> 0). Locks the wallet row
	// until the surrounding transaction commits.
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Wallet, error)

	// Debit decreases the balance by amount (> 0). Returns
	// apperrors.ErrInsufficientFunds without mutation when the balance is
	// short. Check and mutation happen under a row lock.
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Wallet, error)
}

type CreateTransactionParams struct {
	UserID        uuid.UUID
	Type          string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod *string
	PaymentInfo   models.Metadata
	ReferenceCode string
	Description   string
	Metadata      models.Metadata
}

// FinalizeTransactionParams moves a pending transaction to a terminal status.
type FinalizeTransactionParams struct {
	Status     string
	ApprovedBy *uuid.UUID
	ApprovedAt *time.Time

	// Merged into the stored metadata, existing keys preserved
	Metadata models.Metadata
}

type ListTransactionsOpts struct {
	UserID   *uuid.UUID
	Types    []string
	Statuses []string
	Limit    int
}

type TransactionRepo interface {
	// Create a pending ledger entry
	// If the reference code is already taken must return apperrors.ErrReferenceCodeTaken
	Create(ctx context.Context, arg CreateTransactionParams) (models.Transaction, error)

	// Get by id, apperrors.ErrTransactionNotFound when missing
	GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// ReferenceCodeExists reports whether a ledger entry already carries the code
	ReferenceCodeExists(ctx context.Context, code string) (bool, error)

	// GetByIDForUpdate locks the row for the rest of the surrounding transaction
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// Finalize applies a terminal status to a pending transaction.
	// Returns apperrors.ErrInvalidStateTransition if the row exists but is
	// not pending, apperrors.ErrTransactionNotFound if it doesn't exist.
	Finalize(ctx context.Context, id uuid.UUID, arg FinalizeTransactionParams) (models.Transaction, error)

	List(ctx context.Context, opts ListTransactionsOpts) ([]models.Transaction, error)
}

type CreatePackageParams struct {
	Name         string
	Type         string
	Quota        int64
	Price        decimal.Decimal
	DurationDays *int32
	Description  string
	Features     []string
	IsActive     bool
}

type ServicePackageRepo interface {
	Create(ctx context.Context, arg CreatePackageParams) (models.ServicePackage, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.ServicePackage, error)
	List(ctx context.Context, onlyActive bool) ([]models.ServicePackage, error)
	Update(ctx context.Context, pkg models.ServicePackage) (models.ServicePackage, error)
}

type CreateUserPackageParams struct {
	UserID      uuid.UUID
	PackageID   uuid.UUID
	QuotaTotal  int64
	ExpiresAt   *time.Time
	PurchasedAt time.Time
}

type UserPackageRepo interface {
	Create(ctx context.Context, arg CreateUserPackageParams) (models.UserPackage, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.UserPackage, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserPackage, error)

	// GetByIDForUpdate locks the grant row before returning it
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (models.UserPackage, error)

	// ListUsable returns the user's usable grants for one resource type in
	// consumption order: soonest non-null expiry first, unlimited-duration
	// grants last, earliest purchase as tiebreak.
	ListUsable(ctx context.Context, userID uuid.UUID, packageType string, now time.Time) ([]models.UserPackage, error)

	// ListUsableForUpdate is ListUsable with the rows locked for the rest of
	// the surrounding transaction.
	ListUsableForUpdate(ctx context.Context, userID uuid.UUID, packageType string, now time.Time) ([]models.UserPackage, error)

	// AddUsage bumps quota_used by amount. The guard quota_used + amount <=
	// quota_total is part of the statement; violation returns
	// apperrors.ErrQuotaExceeded with no mutation.
	AddUsage(ctx context.Context, id uuid.UUID, amount int64) (models.UserPackage, error)

	// MarkExpired flips status to expired on grants whose expiry has passed.
	// Returns the number of corrected rows.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)

	Cancel(ctx context.Context, id uuid.UUID) (models.UserPackage, error)
}

// UpdateSettingsParams updates only the non-nil fields.
type UpdateSettingsParams struct {
	AutoApproveThreshold *decimal.Decimal
	MinWithdrawal        *decimal.Decimal
	MaxWithdrawal        *decimal.Decimal
	FeePercentage        *decimal.Decimal
	FeeFixed             *decimal.Decimal
}

type SettingsRepo interface {
	// Get returns the singleton settings row, seeding documented defaults on
	// first access.
	Get(ctx context.Context) (models.WithdrawalSettings, error)
	Update(ctx context.Context, arg UpdateSettingsParams) (models.WithdrawalSettings, error)
}
