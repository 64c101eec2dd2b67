package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/models"
)

type WalletRepo struct {
	DB DBTX
}

// Insert-or-ignore plus select keeps concurrent first accesses idempotent:
// the unique constraint on user_id makes one insert win, both callers read
// the surviving row.
const getOrCreateWallet = `-- name: GetOrCreateWallet
WITH new_wallet AS (
	INSERT INTO wallets (user_id, balance, currency)
	VALUES ($1, 0, $2)
	ON CONFLICT (user_id) DO NOTHING
	RETURNING id, created_at, user_id, balance, currency
)
SELECT * FROM new_wallet
UNION
SELECT id, created_at, user_id, balance, currency FROM wallets WHERE user_id = $1
`

func (r *WalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getOrCreateWallet, userID, models.DefaultCurrency)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)
	if err != nil {
		return wallet, fmt.Errorf("db error: %w", err)
	}

	return wallet, nil
}

const lockWallet = `-- name: LockWallet
SELECT id, created_at, user_id, balance, currency FROM wallets
WHERE user_id = $1
FOR UPDATE
`

const updateWalletBalance = `-- name: UpdateWalletBalance
UPDATE wallets SET balance = $2
WHERE id = $1
RETURNING id, created_at, user_id, balance, currency
`

func (r *WalletRepo) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Wallet, error) {
	if !amount.IsPositive() {
		return models.Wallet{}, errAmountNotPositive
	}
	return r.applyDelta(ctx, userID, amount)
}

func (r *WalletRepo) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Wallet, error) {
	if !amount.IsPositive() {
		return models.Wallet{}, errAmountNotPositive
	}
	return r.applyDelta(ctx, userID, amount.Neg())
}

var errAmountNotPositive = errors.New("amount must be positive")

// applyDelta locks the wallet row, checks the resulting balance and writes it
// back. Must run inside a surrounding transaction so the lock pairs the
// mutation with its ledger entry.
func (r *WalletRepo) applyDelta(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (models.Wallet, error) {
	// Create the row first so a debit against a fresh user fails on funds,
	// not on a missing wallet
	wallet, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return wallet, err
	}

	rows, _ := r.DB.Query(ctx, lockWallet, userID)
	wallet, err = pgx.CollectOneRow(rows, rowToWallet)
	if err != nil {
		return wallet, fmt.Errorf("db error: %w", err)
	}

	newBalance := wallet.Balance.Add(delta)
	if newBalance.IsNegative() {
		return wallet, apperrors.ErrInsufficientFunds
	}

	rows, _ = r.DB.Query(ctx, updateWalletBalance, wallet.ID, newBalance)
	wallet, err = pgx.CollectOneRow(rows, rowToWallet)
	if err != nil {
		return wallet, fmt.Errorf("db error: %w", err)
	}

	return wallet, nil
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.CreatedAt, &w.UserID, &w.Balance, &w.Currency)
	return w, err
}
