package quota

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
	"github.com/ntduong/agentpay/internal/repository/postgres"
	"github.com/ntduong/agentpay/internal/testutil"
)

func TestQuota(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, fn func(s *Service, storage repository.Storage)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fn(NewService(storage, nil), storage)
		})
	}

	newUser := func(t *testing.T, storage repository.Storage, name string) models.User {
		user, err := storage.Users().Create(t.Context(), name, "hash", false)
		require.NoError(t, err)
		return user
	}

	newPackage := func(t *testing.T, storage repository.Storage, packageType string) models.ServicePackage {
		pkg, err := storage.Packages().Create(t.Context(), repository.CreatePackageParams{
			Name:     "Bundle " + uuid.NewString()[:8],
			Type:     packageType,
			Quota:    100,
			Price:    decimal.NewFromInt(10_000),
			IsActive: true,
		})
		require.NoError(t, err)
		return pkg
	}

	// Grant quota directly, optionally expiring at the given time
	newGrant := func(t *testing.T, storage repository.Storage, userID, packageID uuid.UUID, total int64, expiresAt *time.Time, purchasedAt time.Time) models.UserPackage {
		grant, err := storage.UserPackages().Create(t.Context(), repository.CreateUserPackageParams{
			UserID:      userID,
			PackageID:   packageID,
			QuotaTotal:  total,
			ExpiresAt:   expiresAt,
			PurchasedAt: purchasedAt,
		})
		require.NoError(t, err)
		return grant
	}

	in := func(d time.Duration) *time.Time {
		e := time.Now().Add(d)
		return &e
	}

	t.Run("UseQuota", func(t *testing.T) {
		t.Run("draws from one grant", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				user := newUser(t, storage, "alice")
				pkg := newPackage(t, storage, models.PackageTypeMessages)
				grant := newGrant(t, storage, user.ID, pkg.ID, 100, nil, time.Now())

				used, err := s.UseQuota(t.Context(), user.ID, grant.ID, 30)

				require.NoError(t, err)
				require.Equal(t, int64(30), used.QuotaUsed)
				require.Equal(t, int64(70), used.Remaining())
			})
		})

		t.Run("over the remainder mutates nothing", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				user := newUser(t, storage, "alice")
				pkg := newPackage(t, storage, models.PackageTypeMessages)
				grant := newGrant(t, storage, user.ID, pkg.ID, 100, nil, time.Now())

				_, err := s.UseQuota(t.Context(), user.ID, grant.ID, 80)
				require.NoError(t, err)

				_, err = s.UseQuota(t.Context(), user.ID, grant.ID, 30)
				require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

				got, err := storage.UserPackages().GetByID(t.Context(), grant.ID)
				require.NoError(t, err)
				require.Equal(t, int64(80), got.QuotaUsed, "failed draw must not consume anything")
			})
		})

		t.Run("expired grant refused even when stored status is stale", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				user := newUser(t, storage, "alice")
				pkg := newPackage(t, storage, models.PackageTypeMessages)
				grant := newGrant(t, storage, user.ID, pkg.ID, 100, in(-time.Hour), time.Now())

				_, err := s.UseQuota(t.Context(), user.ID, grant.ID, 10)

				require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
			})
		})

		t.Run("someone else's grant reads as not found", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				alice := newUser(t, storage, "alice")
				bob := newUser(t, storage, "bob")
				pkg := newPackage(t, storage, models.PackageTypeMessages)
				grant := newGrant(t, storage, alice.ID, pkg.ID, 100, nil, time.Now())

				_, err := s.UseQuota(t.Context(), bob.ID, grant.ID, 10)

				require.ErrorIs(t, err, apperrors.ErrUserPackageNotFound)
			})
		})
	})

	t.Run("Consume", func(t *testing.T) {
		t.Run("skips exhausted active grants", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				user := newUser(t, storage, "alice")
				pkg := newPackage(t, storage, models.PackageTypeMessages)

				exhausted := newGrant(t, storage, user.ID, pkg.ID, 100, nil, time.Now().Add(-time.Hour))
				_, err := storage.UserPackages().AddUsage(t.Context(), exhausted.ID, 100)
				require.NoError(t, err)

				fresh := newGrant(t, storage, user.ID, pkg.ID, 50, nil, time.Now())

				touched, err := s.Consume(t.Context(), user.ID, models.PackageTypeMessages, 20)

				require.NoError(t, err)
				require.Len(t, touched, 1)
				require.Equal(t, fresh.ID, touched[0].ID)
				require.Equal(t, int64(20), touched[0].QuotaUsed)

				got, err := storage.UserPackages().GetByID(t.Context(), exhausted.ID)
				require.NoError(t, err)
				require.Equal(t, int64(100), got.QuotaUsed, "exhausted grant must stay untouched")
			})
		})

		t.Run("soonest expiry drained first", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				user := newUser(t, storage, "alice")
				pkg := newPackage(t, storage, models.PackageTypeMessages)

				later := newGrant(t, storage, user.ID, pkg.ID, 50, in(240*time.Hour), time.Now())
				unlimited := newGrant(t, storage, user.ID, pkg.ID, 50, nil, time.Now().Add(-time.Hour))
				soon := newGrant(t, storage, user.ID, pkg.ID, 50, in(24*time.Hour), time.Now())

				touched, err := s.Consume(t.Context(), user.ID, models.PackageTypeMessages, 70)

				require.NoError(t, err)
				require.Len(t, touched, 2)
				require.Equal(t, soon.ID, touched[0].ID, "grant with the soonest expiry goes first")
				require.Equal(t, int64(50), touched[0].QuotaUsed)
				require.Equal(t, later.ID, touched[1].ID)
				require.Equal(t, int64(20), touched[1].QuotaUsed)

				got, err := storage.UserPackages().GetByID(t.Context(), unlimited.ID)
				require.NoError(t, err)
				require.Zero(t, got.QuotaUsed, "unlimited grant is drawn last")
			})
		})

		t.Run("never partial", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				user := newUser(t, storage, "alice")
				pkg := newPackage(t, storage, models.PackageTypeMessages)

				a := newGrant(t, storage, user.ID, pkg.ID, 20, nil, time.Now().Add(-time.Minute))
				b := newGrant(t, storage, user.ID, pkg.ID, 10, nil, time.Now())

				_, err := s.Consume(t.Context(), user.ID, models.PackageTypeMessages, 50)

				require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

				for _, id := range []uuid.UUID{a.ID, b.ID} {
					got, err := storage.UserPackages().GetByID(t.Context(), id)
					require.NoError(t, err)
					require.Zero(t, got.QuotaUsed, "failed consume must not draw partially")
				}
			})
		})

		t.Run("type isolation", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				user := newUser(t, storage, "alice")
				messages := newPackage(t, storage, models.PackageTypeMessages)
				storagePkg := newPackage(t, storage, models.PackageTypeStorage)

				newGrant(t, storage, user.ID, messages.ID, 100, nil, time.Now())
				other := newGrant(t, storage, user.ID, storagePkg.ID, 100, nil, time.Now())

				_, err := s.Consume(t.Context(), user.ID, models.PackageTypeMessages, 50)
				require.NoError(t, err)

				got, err := storage.UserPackages().GetByID(t.Context(), other.ID)
				require.NoError(t, err)
				require.Zero(t, got.QuotaUsed, "other resource types must stay untouched")
			})
		})
	})

	t.Run("Remaining", func(t *testing.T) {
		inTx(t, func(s *Service, storage repository.Storage) {
			user := newUser(t, storage, "alice")
			pkg := newPackage(t, storage, models.PackageTypeAPICalls)

			newGrant(t, storage, user.ID, pkg.ID, 100, nil, time.Now())
			used := newGrant(t, storage, user.ID, pkg.ID, 50, nil, time.Now())
			_, err := storage.UserPackages().AddUsage(t.Context(), used.ID, 30)
			require.NoError(t, err)

			// Expired quota does not count
			newGrant(t, storage, user.ID, pkg.ID, 500, in(-time.Hour), time.Now())

			remaining, err := s.Remaining(t.Context(), user.ID, models.PackageTypeAPICalls)

			require.NoError(t, err)
			require.Equal(t, int64(120), remaining)
		})
	})

	t.Run("CancelUserPackage", func(t *testing.T) {
		inTx(t, func(s *Service, storage repository.Storage) {
			user := newUser(t, storage, "alice")
			pkg := newPackage(t, storage, models.PackageTypeMessages)
			grant := newGrant(t, storage, user.ID, pkg.ID, 100, nil, time.Now())

			cancelled, err := s.CancelUserPackage(t.Context(), grant.ID)

			require.NoError(t, err)
			require.Equal(t, models.UserPackageStatusCancelled, cancelled.Status)

			_, err = s.UseQuota(t.Context(), user.ID, grant.ID, 1)
			require.ErrorIs(t, err, apperrors.ErrQuotaExceeded, "cancelled grant must be unusable")

			remaining, err := s.Remaining(t.Context(), user.ID, models.PackageTypeMessages)
			require.NoError(t, err)
			require.Zero(t, remaining)
		})
	})

	t.Run("Sweep", func(t *testing.T) {
		inTx(t, func(s *Service, storage repository.Storage) {
			user := newUser(t, storage, "alice")
			pkg := newPackage(t, storage, models.PackageTypeMessages)

			expired := newGrant(t, storage, user.ID, pkg.ID, 100, in(-time.Hour), time.Now().Add(-48*time.Hour))
			alive := newGrant(t, storage, user.ID, pkg.ID, 100, in(time.Hour), time.Now())

			n, err := storage.UserPackages().MarkExpired(t.Context(), time.Now())

			require.NoError(t, err)
			require.Equal(t, int64(1), n)

			got, err := storage.UserPackages().GetByID(t.Context(), expired.ID)
			require.NoError(t, err)
			require.Equal(t, models.UserPackageStatusExpired, got.Status)

			got, err = storage.UserPackages().GetByID(t.Context(), alive.ID)
			require.NoError(t, err)
			require.Equal(t, models.UserPackageStatusActive, got.Status)
		})
	})
}
