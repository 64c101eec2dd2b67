package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

type UserPackageRepo struct {
	DB DBTX
}

const userPackageColumns = `id, user_id, package_id, quota_used, quota_total, expires_at, status, purchased_at`

const createUserPackage = `-- name: CreateUserPackage
INSERT INTO user_packages (user_id, package_id, quota_used, quota_total, expires_at, status, purchased_at)
VALUES ($1, $2, 0, $3, $4, 'active', $5)
RETURNING ` + userPackageColumns

func (r *UserPackageRepo) Create(ctx context.Context, arg repository.CreateUserPackageParams) (models.UserPackage, error) {
	rows, _ := r.DB.Query(ctx, createUserPackage,
		arg.UserID, arg.PackageID, arg.QuotaTotal, arg.ExpiresAt, arg.PurchasedAt,
	)
	up, err := pgx.CollectOneRow(rows, rowToUserPackage)
	if err != nil {
		return up, fmt.Errorf("db error: %w", err)
	}

	return up, nil
}

const getUserPackageByID = `-- name: GetUserPackageByID
SELECT ` + userPackageColumns + ` FROM user_packages
WHERE id = $1
`

func (r *UserPackageRepo) GetByID(ctx context.Context, id uuid.UUID) (models.UserPackage, error) {
	rows, _ := r.DB.Query(ctx, getUserPackageByID, id)
	return collectUserPackage(rows)
}

const getUserPackageByIDForUpdate = getUserPackageByID + `FOR UPDATE`

func (r *UserPackageRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (models.UserPackage, error) {
	rows, _ := r.DB.Query(ctx, getUserPackageByIDForUpdate, id)
	return collectUserPackage(rows)
}

const listUserPackages = `-- name: ListUserPackages
SELECT ` + userPackageColumns + ` FROM user_packages
WHERE user_id = $1
ORDER BY purchased_at DESC
`

func (r *UserPackageRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserPackage, error) {
	rows, _ := r.DB.Query(ctx, listUserPackages, userID)
	packages, err := pgx.CollectRows(rows, rowToUserPackage)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return packages, nil
}

// Consumption order: grants about to expire are drained first, unlimited
// grants last, FIFO between equals.
const listUsable = `-- name: ListUsableUserPackages
SELECT up.id, up.user_id, up.package_id, up.quota_used, up.quota_total, up.expires_at, up.status, up.purchased_at
FROM user_packages up
JOIN service_packages sp ON sp.id = up.package_id
WHERE up.user_id = $1
  AND sp.type = $2
  AND up.status = 'active'
  AND (up.expires_at IS NULL OR up.expires_at > $3)
  AND up.quota_used < up.quota_total
ORDER BY up.expires_at ASC NULLS LAST, up.purchased_at ASC
`

// Locked variant so two concurrent consumers serialize on the same grants
const listUsableForUpdate = listUsable + `FOR UPDATE OF up`

func (r *UserPackageRepo) ListUsable(ctx context.Context, userID uuid.UUID, packageType string, now time.Time) ([]models.UserPackage, error) {
	return r.listUsable(ctx, listUsable, userID, packageType, now)
}

func (r *UserPackageRepo) ListUsableForUpdate(ctx context.Context, userID uuid.UUID, packageType string, now time.Time) ([]models.UserPackage, error) {
	return r.listUsable(ctx, listUsableForUpdate, userID, packageType, now)
}

func (r *UserPackageRepo) listUsable(ctx context.Context, query string, userID uuid.UUID, packageType string, now time.Time) ([]models.UserPackage, error) {
	rows, _ := r.DB.Query(ctx, query, userID, packageType, now)
	packages, err := pgx.CollectRows(rows, rowToUserPackage)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return packages, nil
}

// The quota guard lives in the statement: an oversized amount matches no row
// and mutates nothing.
const addUsage = `-- name: AddUserPackageUsage
UPDATE user_packages
SET quota_used = quota_used + $2
WHERE id = $1 AND quota_used + $2 <= quota_total
RETURNING ` + userPackageColumns

func (r *UserPackageRepo) AddUsage(ctx context.Context, id uuid.UUID, amount int64) (models.UserPackage, error) {
	rows, _ := r.DB.Query(ctx, addUsage, id, amount)
	up, err := pgx.CollectOneRow(rows, rowToUserPackage)

	switch {
	case err == nil:
		return up, nil
	case errors.Is(err, pgx.ErrNoRows):
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return up, getErr
		}
		return up, apperrors.ErrQuotaExceeded
	default:
		return up, fmt.Errorf("db error: %w", err)
	}
}

const markExpired = `-- name: MarkExpiredUserPackages
UPDATE user_packages
SET status = 'expired'
WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
`

func (r *UserPackageRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, markExpired, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

const cancelUserPackage = `-- name: CancelUserPackage
UPDATE user_packages
SET status = 'cancelled'
WHERE id = $1
RETURNING ` + userPackageColumns

func (r *UserPackageRepo) Cancel(ctx context.Context, id uuid.UUID) (models.UserPackage, error) {
	rows, _ := r.DB.Query(ctx, cancelUserPackage, id)
	return collectUserPackage(rows)
}

func collectUserPackage(rows pgx.Rows) (models.UserPackage, error) {
	up, err := pgx.CollectOneRow(rows, rowToUserPackage)

	switch {
	case err == nil:
		return up, nil
	case errors.Is(err, pgx.ErrNoRows):
		return up, apperrors.ErrUserPackageNotFound
	default:
		return up, fmt.Errorf("db error: %w", err)
	}
}

func rowToUserPackage(row pgx.CollectableRow) (models.UserPackage, error) {
	var p models.UserPackage
	err := row.Scan(
		&p.ID, &p.UserID, &p.PackageID, &p.QuotaUsed, &p.QuotaTotal,
		&p.ExpiresAt, &p.Status, &p.PurchasedAt,
	)
	return p, err
}
