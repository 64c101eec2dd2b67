package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

type SettingsRepo struct {
	DB DBTX
}

const settingsColumns = `auto_approve_threshold, min_withdrawal, max_withdrawal, fee_percentage, fee_fixed`

// First access seeds the singleton row with the documented defaults; the
// insert-or-ignore keeps concurrent first accesses idempotent.
const getSettings = `-- name: GetWithdrawalSettings
WITH seeded AS (
	INSERT INTO withdrawal_settings (id)
	VALUES (1)
	ON CONFLICT (id) DO NOTHING
	RETURNING ` + settingsColumns + `
)
SELECT * FROM seeded
UNION
SELECT ` + settingsColumns + ` FROM withdrawal_settings WHERE id = 1
`

func (r *SettingsRepo) Get(ctx context.Context) (models.WithdrawalSettings, error) {
	rows, _ := r.DB.Query(ctx, getSettings)
	settings, err := pgx.CollectOneRow(rows, rowToSettings)
	if err != nil {
		return settings, fmt.Errorf("db error: %w", err)
	}

	return settings, nil
}

const updateSettings = `-- name: UpdateWithdrawalSettings
UPDATE withdrawal_settings
SET auto_approve_threshold = coalesce($1, auto_approve_threshold),
    min_withdrawal = coalesce($2, min_withdrawal),
    max_withdrawal = coalesce($3, max_withdrawal),
    fee_percentage = coalesce($4, fee_percentage),
    fee_fixed = coalesce($5, fee_fixed),
    updated_at = now()
WHERE id = 1
RETURNING ` + settingsColumns

func (r *SettingsRepo) Update(ctx context.Context, arg repository.UpdateSettingsParams) (models.WithdrawalSettings, error) {
	// Make sure the row exists before updating it
	if _, err := r.Get(ctx); err != nil {
		return models.WithdrawalSettings{}, err
	}

	rows, _ := r.DB.Query(ctx, updateSettings,
		arg.AutoApproveThreshold, arg.MinWithdrawal, arg.MaxWithdrawal,
		arg.FeePercentage, arg.FeeFixed,
	)
	settings, err := pgx.CollectOneRow(rows, rowToSettings)
	if err != nil {
		return settings, fmt.Errorf("db error: %w", err)
	}

	return settings, nil
}

func rowToSettings(row pgx.CollectableRow) (models.WithdrawalSettings, error) {
	var s models.WithdrawalSettings
	err := row.Scan(&s.AutoApproveThreshold, &s.MinWithdrawal, &s.MaxWithdrawal, &s.FeePercentage, &s.FeeFixed)
	return s, err
}
