package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

// Service orchestrates every money-moving path: it validates amounts against
// the withdrawal policy, keeps the transaction state machine honest and
// performs the wallet, ledger and quota-grant writes as single units of work.
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

type CreateTransactionParams struct {
	UserID        uuid.UUID
	Type          string
	Amount        decimal.Decimal
	PaymentMethod *string
	PaymentInfo   models.Metadata
	Description   string
}

// CreateTransaction opens a pending ledger entry. Withdrawals are validated
// against the policy bounds before anything is persisted, carry their fee in
// metadata and are auto-approved in the same unit of work when the amount is
// within the threshold.
func (s *Service) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (models.Transaction, error) {
	var created models.Transaction

	switch arg.Type {
	case models.TransactionTypeDeposit, models.TransactionTypeWithdrawal,
		models.TransactionTypePurchase, models.TransactionTypeRefund:
	default:
		return created, apperrors.NewValidationError(fmt.Sprintf("unknown transaction type %q", arg.Type))
	}
	if !arg.Amount.IsPositive() {
		return created, apperrors.NewValidationError("amount must be positive")
	}

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		repoArg := repository.CreateTransactionParams{
			UserID:        arg.UserID,
			Type:          arg.Type,
			Amount:        arg.Amount,
			PaymentMethod: arg.PaymentMethod,
			PaymentInfo:   arg.PaymentInfo,
			Description:   arg.Description,
		}

		var settings models.WithdrawalSettings
		if arg.Type == models.TransactionTypeWithdrawal {
			var err error
			settings, err = store.Settings().Get(ctx)
			if err != nil {
				return err
			}

			if violations := ValidateAmount(settings, arg.Amount); len(violations) > 0 {
				return &apperrors.ValidationError{Violations: violations}
			}

			// The fee rides along in metadata; approval debits amount + fee
			fee := CalculateFee(settings, arg.Amount)
			total := arg.Amount.Add(fee)
			repoArg.Metadata = models.Metadata{
				models.MetaKeyFee:         models.String(fee.String()),
				models.MetaKeyTotalAmount: models.String(total.String()),
			}

			// Refuse requests the wallet can't cover, fee included
			wallet, err := store.Wallets().GetOrCreate(ctx, arg.UserID)
			if err != nil {
				return err
			}
			if wallet.Balance.LessThan(total) {
				return apperrors.ErrInsufficientFunds
			}
		}

		t, err := s.createWithReferenceCode(ctx, store, repoArg)
		if err != nil {
			return err
		}

		// Auto-approval is a policy hook inside creation, not a separate
		// caller responsibility. Nil approver marks system approval.
		if arg.Type == models.TransactionTypeWithdrawal && CanAutoApprove(settings, arg.Amount) {
			t, err = s.finalizeApproval(ctx, store, t, nil, "")
			if err != nil {
				return err
			}
		}

		created = t
		return nil
	})

	return created, err
}

// ApproveTransaction completes a pending transaction on behalf of an admin:
// credits the wallet for deposits and refunds, debits it for withdrawals and
// purchases. A failed debit aborts the whole approval and leaves the
// transaction pending.
func (s *Service) ApproveTransaction(ctx context.Context, id uuid.UUID, approverID uuid.UUID, note string) (models.Transaction, error) {
	var approved models.Transaction

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		t, err := store.Transactions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		approved, err = s.finalizeApproval(ctx, store, t, &approverID, note)
		return err
	})

	return approved, err
}

// RejectTransaction cancels a pending transaction. The wallet is untouched
// and the mandatory reason is persisted for audit.
func (s *Service) RejectTransaction(ctx context.Context, id uuid.UUID, approverID uuid.UUID, reason string) (models.Transaction, error) {
	var rejected models.Transaction

	if strings.TrimSpace(reason) == "" {
		return rejected, apperrors.NewValidationError("rejection reason is required")
	}

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		t, err := store.Transactions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !t.IsPending() {
			return apperrors.ErrInvalidStateTransition
		}

		now := time.Now()
		rejected, err = store.Transactions().Finalize(ctx, t.ID, repository.FinalizeTransactionParams{
			Status:     models.TransactionStatusCancelled,
			ApprovedBy: &approverID,
			ApprovedAt: &now,
			Metadata: models.Metadata{
				models.MetaKeyRejectedFor: models.String(reason),
			},
		})
		return err
	})

	return rejected, err
}

// FailTransaction marks a pending transaction failed. Meant for
// system-detected failures rather than human rejection; wallet-neutral.
func (s *Service) FailTransaction(ctx context.Context, id uuid.UUID, reason string) (models.Transaction, error) {
	var failed models.Transaction

	err := s.storage.InTx(ctx, func(store repository.Storage) error {
		t, err := store.Transactions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !t.IsPending() {
			return apperrors.ErrInvalidStateTransition
		}

		now := time.Now()
		meta := models.Metadata{}
		if reason != "" {
			meta[models.MetaKeyRejectedFor] = models.String(reason)
		}

		failed, err = store.Transactions().Finalize(ctx, t.ID, repository.FinalizeTransactionParams{
			Status:     models.TransactionStatusFailed,
			ApprovedAt: &now,
			Metadata:   meta,
		})
		return err
	})

	return failed, err
}

// PurchasePackage debits the wallet by the package price and grants the
// quota in one unit of work: paying without receiving, or receiving without
// paying, never commits.
func (s *Service) PurchasePackage(ctx context.Context, userID uuid.UUID, packageID uuid.UUID) (models.UserPackage, error) {
	var grant models.UserPackage

	pkg, err := s.storage.Packages().GetByID(ctx, packageID)
	if err != nil {
		return grant, err
	}
	if !pkg.IsActive {
		return grant, apperrors.ErrPackageInactive
	}

	err = s.storage.InTx(ctx, func(store repository.Storage) error {
		now := time.Now()

		// Ledger entries require a positive amount, so free packages are
		// granted without one; there is no wallet mutation to pair with.
		if pkg.Price.IsPositive() {
			method := "wallet"
			t, err := s.createWithReferenceCode(ctx, store, repository.CreateTransactionParams{
				UserID:        userID,
				Type:          models.TransactionTypePurchase,
				Amount:        pkg.Price,
				PaymentMethod: &method,
				Description:   "Service package purchase: " + pkg.Name,
				Metadata: models.Metadata{
					models.MetaKeyPackageID: models.String(pkg.ID.String()),
				},
			})
			if err != nil {
				return err
			}

			if _, err := s.finalizeApproval(ctx, store, t, nil, ""); err != nil {
				return err
			}
		}

		var expiresAt *time.Time
		if pkg.DurationDays != nil {
			e := now.AddDate(0, 0, int(*pkg.DurationDays))
			expiresAt = &e
		}

		var err error
		grant, err = store.UserPackages().Create(ctx, repository.CreateUserPackageParams{
			UserID:      userID,
			PackageID:   pkg.ID,
			QuotaTotal:  pkg.Quota,
			ExpiresAt:   expiresAt,
			PurchasedAt: now,
		})
		return err
	})

	if err == nil {
		s.logger.Info("package purchased",
			"user_id", userID, "package_id", packageID, "price", pkg.Price)
	}

	return grant, err
}

func (s *Service) GetPackage(ctx context.Context, id uuid.UUID) (models.ServicePackage, error) {
	return s.storage.Packages().GetByID(ctx, id)
}

func (s *Service) ListPackages(ctx context.Context, onlyActive bool) ([]models.ServicePackage, error) {
	return s.storage.Packages().List(ctx, onlyActive)
}

func (s *Service) CreatePackage(ctx context.Context, arg repository.CreatePackageParams) (models.ServicePackage, error) {
	if violations := validatePackage(arg.Name, arg.Type, arg.Quota, arg.Price, arg.DurationDays); len(violations) > 0 {
		return models.ServicePackage{}, &apperrors.ValidationError{Violations: violations}
	}

	return s.storage.Packages().Create(ctx, arg)
}

// UpdatePackage replaces the catalog row. Existing grants are unaffected,
// they copied quota and duration at purchase time.
func (s *Service) UpdatePackage(ctx context.Context, pkg models.ServicePackage) (models.ServicePackage, error) {
	if violations := validatePackage(pkg.Name, pkg.Type, pkg.Quota, pkg.Price, pkg.DurationDays); len(violations) > 0 {
		return models.ServicePackage{}, &apperrors.ValidationError{Violations: violations}
	}

	return s.storage.Packages().Update(ctx, pkg)
}

func validatePackage(name string, packageType string, quota int64, price decimal.Decimal, durationDays *int32) []string {
	var violations []string

	if strings.TrimSpace(name) == "" {
		violations = append(violations, "name is required")
	}
	switch packageType {
	case models.PackageTypeMessages, models.PackageTypeAPICalls, models.PackageTypeStorage:
	default:
		violations = append(violations, fmt.Sprintf("unknown package type %q", packageType))
	}
	if quota <= 0 {
		violations = append(violations, "quota must be positive")
	}
	if price.IsNegative() {
		violations = append(violations, "price must not be negative")
	}
	if durationDays != nil && *durationDays <= 0 {
		violations = append(violations, "duration_days must be positive when set")
	}

	return violations
}

func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	return s.storage.Wallets().GetOrCreate(ctx, userID)
}

func (s *Service) GetWalletBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.storage.Wallets().GetOrCreate(ctx, userID)
	return wallet.Balance, err
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	return s.storage.Transactions().GetByID(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	return s.storage.Transactions().List(ctx, opts)
}

// PendingWithdrawals is the admin review queue.
func (s *Service) PendingWithdrawals(ctx context.Context) ([]models.Transaction, error) {
	return s.storage.Transactions().List(ctx, repository.ListTransactionsOpts{
		Types:    []string{models.TransactionTypeWithdrawal},
		Statuses: []string{models.TransactionStatusPending},
	})
}

func (s *Service) GetWithdrawalSettings(ctx context.Context) (models.WithdrawalSettings, error) {
	return s.storage.Settings().Get(ctx)
}

func (s *Service) UpdateWithdrawalSettings(ctx context.Context, arg repository.UpdateSettingsParams) (models.WithdrawalSettings, error) {
	var violations []string

	nonNegative := func(name string, v *decimal.Decimal) {
		if v != nil && v.IsNegative() {
			violations = append(violations, name+" must not be negative")
		}
	}
	nonNegative("auto_approve_threshold", arg.AutoApproveThreshold)
	nonNegative("min_withdrawal", arg.MinWithdrawal)
	nonNegative("max_withdrawal", arg.MaxWithdrawal)
	nonNegative("fee_fixed", arg.FeeFixed)
	if arg.FeePercentage != nil && (arg.FeePercentage.IsNegative() || arg.FeePercentage.GreaterThan(hundred)) {
		violations = append(violations, "fee_percentage must be between 0 and 100")
	}
	if len(violations) > 0 {
		return models.WithdrawalSettings{}, &apperrors.ValidationError{Violations: violations}
	}

	return s.storage.Settings().Update(ctx, arg)
}

// finalizeApproval moves a pending transaction to completed together with its
// wallet mutation. Nil approvedBy records a system (auto) approval.
func (s *Service) finalizeApproval(ctx context.Context, store repository.Storage, t models.Transaction, approvedBy *uuid.UUID, note string) (models.Transaction, error) {
	if !t.IsPending() {
		return t, apperrors.ErrInvalidStateTransition
	}

	amount, err := debitableAmount(t)
	if err != nil {
		return t, err
	}

	if t.IsCredit() {
		_, err = store.Wallets().Credit(ctx, t.UserID, amount)
	} else {
		_, err = store.Wallets().Debit(ctx, t.UserID, amount)
	}
	if err != nil {
		return t, err
	}

	meta := models.Metadata{}
	if note != "" {
		meta["note"] = models.String(note)
	}

	now := time.Now()
	completed, err := store.Transactions().Finalize(ctx, t.ID, repository.FinalizeTransactionParams{
		Status:     models.TransactionStatusCompleted,
		ApprovedBy: approvedBy,
		ApprovedAt: &now,
		Metadata:   meta,
	})
	if err != nil {
		return t, err
	}

	s.logger.Info("transaction completed",
		"reference_code", completed.ReferenceCode, "type", completed.Type,
		"amount", completed.Amount, "auto", approvedBy == nil)

	return completed, nil
}

// debitableAmount is the amount the wallet actually moves by: withdrawals
// carry amount + fee in metadata, everything else moves by the face amount.
func debitableAmount(t models.Transaction) (decimal.Decimal, error) {
	if t.Type != models.TransactionTypeWithdrawal {
		return t.Amount, nil
	}

	v, ok := t.Metadata[models.MetaKeyTotalAmount]
	if !ok {
		return t.Amount, nil
	}
	raw, ok := v.String()
	if !ok {
		return t.Amount, errors.New("transaction total_amount metadata is not a string")
	}

	total, err := decimal.NewFromString(raw)
	if err != nil {
		return t.Amount, fmt.Errorf("bad total_amount metadata: %w", err)
	}

	return total, nil
}

// createWithReferenceCode persists a pending entry with a fresh unique
// reference code: generate-and-check bounded by a small attempt budget, with
// the unique constraint closing the check/insert window.
func (s *Service) createWithReferenceCode(ctx context.Context, store repository.Storage, arg repository.CreateTransactionParams) (models.Transaction, error) {
	for attempt := 1; attempt <= maxReferenceCodeAttempts; attempt++ {
		code, err := NewReferenceCode()
		if err != nil {
			return models.Transaction{}, err
		}

		exists, err := store.Transactions().ReferenceCodeExists(ctx, code)
		if err != nil {
			return models.Transaction{}, err
		}
		if exists {
			s.logger.Warn("reference code collision", "attempt", attempt)
			continue
		}

		arg.ReferenceCode = code
		return store.Transactions().Create(ctx, arg)
	}

	return models.Transaction{}, apperrors.ErrReferenceCodeGeneration
}
