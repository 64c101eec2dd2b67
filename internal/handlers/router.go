package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ntduong/agentpay/internal/handlers/middleware"
	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
	"github.com/ntduong/agentpay/internal/service/auth"
	"github.com/ntduong/agentpay/internal/service/settlement"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	settlementService settlementService,
	quotaService quotaService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)
	adminOnly := middleware.AdminMiddleware()
	withAdmin := func(h http.Handler) http.Handler {
		return withAuth(adminOnly(h))
	}

	apiuser := http.NewServeMux()

	apiuser.Handle("POST /register", handleRegister(authService, logger))
	apiuser.Handle("POST /login", handleLogin(authService, logger))

	apiuser.Handle("GET /wallet", withAuth(handleWalletBalance(settlementService, logger)))
	apiuser.Handle("POST /wallet/deposit", withAuth(handleDeposit(settlementService, logger)))
	apiuser.Handle("POST /wallet/withdraw", withAuth(handleWithdraw(settlementService, logger)))
	apiuser.Handle("GET /transactions", withAuth(handleListTransactions(settlementService, logger)))

	apiuser.Handle("GET /packages", withAuth(handleListPackages(settlementService, logger)))
	apiuser.Handle("POST /packages/{id}/purchase", withAuth(handlePurchasePackage(settlementService, logger)))
	apiuser.Handle("GET /packages/mine", withAuth(handleListUserPackages(quotaService, logger)))
	apiuser.Handle("POST /quota/consume", withAuth(handleConsumeQuota(quotaService, logger)))
	apiuser.Handle("POST /quota/use", withAuth(handleUseQuota(quotaService, logger)))
	apiuser.Handle("GET /quota/{type}", withAuth(handleQuotaRemaining(quotaService, logger)))

	apiuser.Handle("GET /me", withAuth(handleUserMe()))

	apiadmin := http.NewServeMux()

	apiadmin.Handle("GET /transactions", handleAdminListTransactions(settlementService, logger))
	apiadmin.Handle("GET /withdrawals/pending", handlePendingWithdrawals(settlementService, logger))
	apiadmin.Handle("POST /transactions/{id}/approve", handleApproveTransaction(settlementService, logger))
	apiadmin.Handle("POST /transactions/{id}/reject", handleRejectTransaction(settlementService, logger))
	apiadmin.Handle("GET /settings/withdrawal", handleGetWithdrawalSettings(settlementService, logger))
	apiadmin.Handle("PATCH /settings/withdrawal", handleUpdateWithdrawalSettings(settlementService, logger))
	apiadmin.Handle("POST /packages", handleCreatePackage(settlementService, logger))
	apiadmin.Handle("PUT /packages/{id}", handleUpdatePackage(settlementService, logger))

	root := http.NewServeMux()
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", withAdmin(apiadmin)))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user with username and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string, isAdmin bool) (models.User, auth.IssuedToken, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if user not found
	Login(ctx context.Context, username string, password string) (models.User, auth.IssuedToken, error)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type settlementService interface {
	CreateTransaction(ctx context.Context, arg settlement.CreateTransactionParams) (models.Transaction, error)
	ApproveTransaction(ctx context.Context, id uuid.UUID, approverID uuid.UUID, note string) (models.Transaction, error)
	RejectTransaction(ctx context.Context, id uuid.UUID, approverID uuid.UUID, reason string) (models.Transaction, error)

	GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	ListTransactions(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error)
	PendingWithdrawals(ctx context.Context) ([]models.Transaction, error)

	PurchasePackage(ctx context.Context, userID uuid.UUID, packageID uuid.UUID) (models.UserPackage, error)
	ListPackages(ctx context.Context, onlyActive bool) ([]models.ServicePackage, error)
	CreatePackage(ctx context.Context, arg repository.CreatePackageParams) (models.ServicePackage, error)
	UpdatePackage(ctx context.Context, pkg models.ServicePackage) (models.ServicePackage, error)
	GetPackage(ctx context.Context, id uuid.UUID) (models.ServicePackage, error)

	GetWithdrawalSettings(ctx context.Context) (models.WithdrawalSettings, error)
	UpdateWithdrawalSettings(ctx context.Context, arg repository.UpdateSettingsParams) (models.WithdrawalSettings, error)
}

type quotaService interface {
	UseQuota(ctx context.Context, userID uuid.UUID, userPackageID uuid.UUID, amount int64) (models.UserPackage, error)
	Consume(ctx context.Context, userID uuid.UUID, packageType string, amount int64) ([]models.UserPackage, error)
	Remaining(ctx context.Context, userID uuid.UUID, packageType string) (int64, error)
	ListUserPackages(ctx context.Context, userID uuid.UUID) ([]models.UserPackage, error)
}
