package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

type TransactionRepo struct {
	DB DBTX
}

const transactionColumns = `id, created_at, user_id, type, amount, currency, status,
payment_method, payment_info, reference_code, description, approved_by, approved_at, metadata`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (user_id, type, amount, currency, payment_method, payment_info, reference_code, description, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + transactionColumns

func (r *TransactionRepo) Create(ctx context.Context, arg repository.CreateTransactionParams) (models.Transaction, error) {
	currency := arg.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		arg.UserID, arg.Type, arg.Amount, currency,
		arg.PaymentMethod, jsonbOrNull(arg.PaymentInfo), arg.ReferenceCode, arg.Description, jsonbOrNull(arg.Metadata),
	)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return t, apperrors.ErrReferenceCodeTaken
		}
		return t, fmt.Errorf("db error: %w", err)
	}

	return t, nil
}

const getTransactionByID = `-- name: GetTransactionByID
SELECT ` + transactionColumns + ` FROM transactions
WHERE id = $1
`

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransactionByID, id)
	return collectTransaction(rows)
}

const referenceCodeExists = `-- name: ReferenceCodeExists
SELECT EXISTS (SELECT 1 FROM transactions WHERE reference_code = $1)
`

func (r *TransactionRepo) ReferenceCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.DB.QueryRow(ctx, referenceCodeExists, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

const getTransactionByIDForUpdate = getTransactionByID + `FOR UPDATE`

func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransactionByIDForUpdate, id)
	return collectTransaction(rows)
}

// Finalize succeeds only against a pending row: the status guard is part of
// the statement, so a lost race surfaces as ErrInvalidStateTransition rather
// than a second mutation.
const finalizeTransaction = `-- name: FinalizeTransaction
UPDATE transactions
SET status = $2,
    approved_by = $3,
    approved_at = $4,
    metadata = coalesce(metadata, '{}'::jsonb) || coalesce($5::jsonb, '{}'::jsonb)
WHERE id = $1 AND status = 'pending'
RETURNING ` + transactionColumns

func (r *TransactionRepo) Finalize(ctx context.Context, id uuid.UUID, arg repository.FinalizeTransactionParams) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, finalizeTransaction, id, arg.Status, arg.ApprovedBy, arg.ApprovedAt, jsonbOrNull(arg.Metadata))
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either the row is missing or it already left pending
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return t, getErr
		}
		return t, apperrors.ErrInvalidStateTransition
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

func (r *TransactionRepo) List(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	var (
		where []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.UserID != nil {
		where = append(where, "user_id = "+arg(*opts.UserID))
	}
	if len(opts.Types) > 0 {
		where = append(where, "type = any("+arg(opts.Types)+")")
	}
	if len(opts.Statuses) > 0 {
		where = append(where, "status = any("+arg(opts.Statuses)+")")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}

	rows, _ := r.DB.Query(ctx, query, args...)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

// Empty metadata is stored as SQL NULL, not the jsonb 'null' scalar
func jsonbOrNull(m models.Metadata) any {
	if len(m) == 0 {
		return nil
	}
	return m
}

func collectTransaction(rows pgx.Rows) (models.Transaction, error) {
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.UserID, &t.Type, &t.Amount, &t.Currency, &t.Status,
		&t.PaymentMethod, &t.PaymentInfo, &t.ReferenceCode, &t.Description,
		&t.ApprovedBy, &t.ApprovedAt, &t.Metadata,
	)
	return t, err
}
