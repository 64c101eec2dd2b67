package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/repository"
	"github.com/ntduong/agentpay/internal/testutil"
)

func TestUsers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, fn func(storage repository.Storage)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(NewStorage(tx))
		})
	}

	t.Run("create and fetch", func(t *testing.T) {
		inTx(t, func(storage repository.Storage) {
			created, err := storage.Users().Create(t.Context(), "duong", "hashed", true)

			require.NoError(t, err)
			require.NotEmpty(t, created.ID)
			require.True(t, created.IsAdmin)
			require.NotZero(t, created.CreatedAt)

			byID, err := storage.Users().GetByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, created.Username, byID.Username)

			byName, err := storage.Users().GetByUsername(t.Context(), "duong")
			require.NoError(t, err)
			require.Equal(t, created.ID, byName.ID)
		})
	})

	t.Run("duplicate username", func(t *testing.T) {
		inTx(t, func(storage repository.Storage) {
			_, err := storage.Users().Create(t.Context(), "duong", "hashed", false)
			require.NoError(t, err)

			_, err = storage.Users().Create(t.Context(), "duong", "other", false)
			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("not found", func(t *testing.T) {
		inTx(t, func(storage repository.Storage) {
			_, err := storage.Users().GetByID(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)

			_, err = storage.Users().GetByUsername(t.Context(), "nobody")
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
