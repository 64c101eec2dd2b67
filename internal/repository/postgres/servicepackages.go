package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

type ServicePackageRepo struct {
	DB DBTX
}

const packageColumns = `id, created_at, name, type, quota, price, duration_days, description, features, is_active`

const createPackage = `-- name: CreateServicePackage
INSERT INTO service_packages (name, type, quota, price, duration_days, description, features, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + packageColumns

func (r *ServicePackageRepo) Create(ctx context.Context, arg repository.CreatePackageParams) (models.ServicePackage, error) {
	rows, _ := r.DB.Query(ctx, createPackage,
		arg.Name, arg.Type, arg.Quota, arg.Price, arg.DurationDays,
		arg.Description, arg.Features, arg.IsActive,
	)
	pkg, err := pgx.CollectOneRow(rows, rowToServicePackage)
	if err != nil {
		return pkg, fmt.Errorf("db error: %w", err)
	}

	return pkg, nil
}

const getPackageByID = `-- name: GetServicePackageByID
SELECT ` + packageColumns + ` FROM service_packages
WHERE id = $1
`

func (r *ServicePackageRepo) GetByID(ctx context.Context, id uuid.UUID) (models.ServicePackage, error) {
	rows, _ := r.DB.Query(ctx, getPackageByID, id)
	pkg, err := pgx.CollectOneRow(rows, rowToServicePackage)

	switch {
	case err == nil:
		return pkg, nil
	case errors.Is(err, pgx.ErrNoRows):
		return pkg, apperrors.ErrPackageNotFound
	default:
		return pkg, fmt.Errorf("db error: %w", err)
	}
}

const listPackages = `-- name: ListServicePackages
SELECT ` + packageColumns + ` FROM service_packages
WHERE (NOT $1::boolean) OR is_active
ORDER BY type, price
`

func (r *ServicePackageRepo) List(ctx context.Context, onlyActive bool) ([]models.ServicePackage, error) {
	rows, _ := r.DB.Query(ctx, listPackages, onlyActive)
	packages, err := pgx.CollectRows(rows, rowToServicePackage)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return packages, nil
}

const updatePackage = `-- name: UpdateServicePackage
UPDATE service_packages
SET name = $2, type = $3, quota = $4, price = $5, duration_days = $6,
    description = $7, features = $8, is_active = $9
WHERE id = $1
RETURNING ` + packageColumns

func (r *ServicePackageRepo) Update(ctx context.Context, pkg models.ServicePackage) (models.ServicePackage, error) {
	rows, _ := r.DB.Query(ctx, updatePackage,
		pkg.ID, pkg.Name, pkg.Type, pkg.Quota, pkg.Price, pkg.DurationDays,
		pkg.Description, pkg.Features, pkg.IsActive,
	)
	updated, err := pgx.CollectOneRow(rows, rowToServicePackage)

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return updated, apperrors.ErrPackageNotFound
	default:
		return updated, fmt.Errorf("db error: %w", err)
	}
}

func rowToServicePackage(row pgx.CollectableRow) (models.ServicePackage, error) {
	var p models.ServicePackage
	err := row.Scan(
		&p.ID, &p.CreatedAt, &p.Name, &p.Type, &p.Quota, &p.Price,
		&p.DurationDays, &p.Description, &p.Features, &p.IsActive,
	)
	return p, err
}
