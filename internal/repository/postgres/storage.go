package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ntduong/agentpay/internal/repository"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the same
// repositories work inside and outside an explicit transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{db: db}
}

func (s *Storage) Users() repository.UserRepo {
	return &UserRepo{DB: s.db}
}

func (s *Storage) Wallets() repository.WalletRepo {
	return &WalletRepo{DB: s.db}
}

func (s *Storage) Transactions() repository.TransactionRepo {
	return &TransactionRepo{DB: s.db}
}

func (s *Storage) Packages() repository.ServicePackageRepo {
	return &ServicePackageRepo{DB: s.db}
}

func (s *Storage) UserPackages() repository.UserPackageRepo {
	return &UserPackageRepo{DB: s.db}
}

func (s *Storage) Settings() repository.SettingsRepo {
	return &SettingsRepo{DB: s.db}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx))

	return err
}
