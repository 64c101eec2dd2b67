package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

// Service tracks consumption of purchased quota grants. It never touches
// wallets or the ledger; grants are created by the settlement service.
type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage: storage,
		logger:  l,
	}
}

// UseQuota consumes amount from one specific grant owned by userID. All or
// nothing: an inactive grant or an amount beyond the remainder fails without
// mutation. A grant owned by someone else reads as not found.
func (s *Service) UseQuota(ctx context.Context, userID uuid.UUID, userPackageID uuid.UUID, amount int64) (models.UserPackage, error) {
	var used models.UserPackage

	if amount <= 0 {
		return used, apperrors.NewValidationError("amount must be positive")
	}

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		up, err := store.UserPackages().GetByIDForUpdate(ctx, userPackageID)
		if err != nil {
			return err
		}
		if up.UserID != userID {
			return apperrors.ErrUserPackageNotFound
		}

		// Activity is computed, the stored status alone can be stale
		if !up.CanUse(amount) {
			return apperrors.ErrQuotaExceeded
		}

		used, err = store.UserPackages().AddUsage(ctx, up.ID, amount)
		return err
	})

	return used, err
}

// Consume draws amount for one resource type across all of the user's usable
// grants. Grants about to expire are drained first, unlimited-duration grants
// last, earliest purchase between equals. All or nothing across the set.
func (s *Service) Consume(ctx context.Context, userID uuid.UUID, packageType string, amount int64) ([]models.UserPackage, error) {
	if amount <= 0 {
		return nil, apperrors.NewValidationError("amount must be positive")
	}

	var touched []models.UserPackage

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		grants, err := store.UserPackages().ListUsableForUpdate(ctx, userID, packageType, time.Now())
		if err != nil {
			return err
		}

		var available int64
		for _, g := range grants {
			available += g.Remaining()
		}
		if available < amount {
			return apperrors.ErrQuotaExceeded
		}

		left := amount
		for _, g := range grants {
			if left == 0 {
				break
			}

			take := min(g.Remaining(), left)
			updated, err := store.UserPackages().AddUsage(ctx, g.ID, take)
			if err != nil {
				return err
			}

			touched = append(touched, updated)
			left -= take
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("quota consumed",
		"user_id", userID, "type", packageType, "amount", amount, "grants", len(touched))

	return touched, nil
}

// Remaining sums the usable quota for one resource type.
func (s *Service) Remaining(ctx context.Context, userID uuid.UUID, packageType string) (int64, error) {
	grants, err := s.storage.UserPackages().ListUsable(ctx, userID, packageType, time.Now())
	if err != nil {
		return 0, err
	}

	var total int64
	for _, g := range grants {
		total += g.Remaining()
	}

	return total, nil
}

func (s *Service) ListUserPackages(ctx context.Context, userID uuid.UUID) ([]models.UserPackage, error) {
	return s.storage.UserPackages().ListByUser(ctx, userID)
}

func (s *Service) CancelUserPackage(ctx context.Context, id uuid.UUID) (models.UserPackage, error) {
	return s.storage.UserPackages().Cancel(ctx, id)
}
