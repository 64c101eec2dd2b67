package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
	"github.com/ntduong/agentpay/internal/service/auth"
	"github.com/ntduong/agentpay/internal/service/settlement"
)

// Stub services keyed on bearer tokens: "user-token" resolves to a plain
// user, "admin-token" to an admin, anything else fails authentication.
type stubAuthService struct {
	user  models.User
	admin models.User
}

func (s *stubAuthService) Register(_ context.Context, username, _ string, isAdmin bool) (models.User, auth.IssuedToken, error) {
	if username == s.user.Username {
		return models.User{}, auth.IssuedToken{}, apperrors.ErrUserAlreadyExists
	}
	u := models.User{ID: uuid.New(), Username: username, IsAdmin: isAdmin}
	return u, auth.IssuedToken{Value: "fresh-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubAuthService) Login(_ context.Context, username, password string) (models.User, auth.IssuedToken, error) {
	if username != s.user.Username || password != "password123" {
		return models.User{}, auth.IssuedToken{}, apperrors.ErrUserNotFound
	}
	return s.user, auth.IssuedToken{Value: "user-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubAuthService) Auth(_ context.Context, r *http.Request) (models.User, error) {
	switch r.Header.Get("Authorization") {
	case "Bearer user-token":
		return s.user, nil
	case "Bearer admin-token":
		return s.admin, nil
	default:
		return models.User{}, errors.New("bad token")
	}
}

type stubSettlementService struct {
	wallet      models.Wallet
	transaction models.Transaction
	err         error
}

func (s *stubSettlementService) CreateTransaction(context.Context, settlement.CreateTransactionParams) (models.Transaction, error) {
	return s.transaction, s.err
}

func (s *stubSettlementService) ApproveTransaction(context.Context, uuid.UUID, uuid.UUID, string) (models.Transaction, error) {
	return s.transaction, s.err
}

func (s *stubSettlementService) RejectTransaction(context.Context, uuid.UUID, uuid.UUID, string) (models.Transaction, error) {
	return s.transaction, s.err
}

func (s *stubSettlementService) GetWallet(context.Context, uuid.UUID) (models.Wallet, error) {
	return s.wallet, s.err
}

func (s *stubSettlementService) ListTransactions(context.Context, repository.ListTransactionsOpts) ([]models.Transaction, error) {
	return []models.Transaction{s.transaction}, s.err
}

func (s *stubSettlementService) PendingWithdrawals(context.Context) ([]models.Transaction, error) {
	return []models.Transaction{s.transaction}, s.err
}

func (s *stubSettlementService) PurchasePackage(context.Context, uuid.UUID, uuid.UUID) (models.UserPackage, error) {
	return models.UserPackage{}, s.err
}

func (s *stubSettlementService) ListPackages(context.Context, bool) ([]models.ServicePackage, error) {
	return nil, s.err
}

func (s *stubSettlementService) CreatePackage(context.Context, repository.CreatePackageParams) (models.ServicePackage, error) {
	return models.ServicePackage{}, s.err
}

func (s *stubSettlementService) UpdatePackage(_ context.Context, pkg models.ServicePackage) (models.ServicePackage, error) {
	return pkg, s.err
}

func (s *stubSettlementService) GetPackage(context.Context, uuid.UUID) (models.ServicePackage, error) {
	return models.ServicePackage{}, s.err
}

func (s *stubSettlementService) GetWithdrawalSettings(context.Context) (models.WithdrawalSettings, error) {
	return models.WithdrawalSettings{}, s.err
}

func (s *stubSettlementService) UpdateWithdrawalSettings(context.Context, repository.UpdateSettingsParams) (models.WithdrawalSettings, error) {
	return models.WithdrawalSettings{}, s.err
}

type stubQuotaService struct {
	grant models.UserPackage
	err   error
}

func (s *stubQuotaService) UseQuota(context.Context, uuid.UUID, uuid.UUID, int64) (models.UserPackage, error) {
	return s.grant, s.err
}

func (s *stubQuotaService) Consume(context.Context, uuid.UUID, string, int64) ([]models.UserPackage, error) {
	return []models.UserPackage{s.grant}, s.err
}

func (s *stubQuotaService) Remaining(context.Context, uuid.UUID, string) (int64, error) {
	return s.grant.Remaining(), s.err
}

func (s *stubQuotaService) ListUserPackages(context.Context, uuid.UUID) ([]models.UserPackage, error) {
	return []models.UserPackage{s.grant}, s.err
}

func TestRouter(t *testing.T) {
	t.Parallel()

	user := models.User{ID: uuid.New(), Username: "alice"}
	admin := models.User{ID: uuid.New(), Username: "root", IsAdmin: true}

	newServer := func(ss *stubSettlementService, qs *stubQuotaService) http.Handler {
		return NewRouter(&stubAuthService{user: user, admin: admin}, ss, qs, logger.NewNoOpLogger())
	}

	do := func(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
		var r *http.Request
		if body == "" {
			r = httptest.NewRequest(method, path, nil)
		} else {
			r = httptest.NewRequest(method, path, strings.NewReader(body))
		}
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	t.Run("register", func(t *testing.T) {
		h := newServer(&stubSettlementService{}, &stubQuotaService{})

		rec := do(h, "POST", "/api/user/register", "", `{"username":"bob","password":"password123"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "fresh-token")

		rec = do(h, "POST", "/api/user/register", "", `{"username":"alice","password":"password123"}`)
		require.Equal(t, http.StatusConflict, rec.Code)

		rec = do(h, "POST", "/api/user/register", "", `{"username":"bob","password":"short"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("login", func(t *testing.T) {
		h := newServer(&stubSettlementService{}, &stubQuotaService{})

		rec := do(h, "POST", "/api/user/login", "", `{"username":"alice","password":"password123"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "user-token")

		rec = do(h, "POST", "/api/user/login", "", `{"username":"alice","password":"wrong"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wallet requires auth", func(t *testing.T) {
		h := newServer(&stubSettlementService{}, &stubQuotaService{})

		rec := do(h, "GET", "/api/user/wallet", "", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wallet balance", func(t *testing.T) {
		h := newServer(&stubSettlementService{
			wallet: models.Wallet{Balance: decimal.NewFromInt(42_000), Currency: "VND"},
		}, &stubQuotaService{})

		rec := do(h, "GET", "/api/user/wallet", "user-token", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"balance":"42000","currency":"VND"}`, rec.Body.String())
	})

	t.Run("withdraw with insufficient funds", func(t *testing.T) {
		h := newServer(&stubSettlementService{err: apperrors.ErrInsufficientFunds}, &stubQuotaService{})

		rec := do(h, "POST", "/api/user/wallet/withdraw", "user-token",
			`{"amount":"100000","payment_method":"bank_transfer"}`)
		require.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("withdraw below minimum", func(t *testing.T) {
		h := newServer(&stubSettlementService{
			err: apperrors.NewValidationError("minimum withdrawal amount is 50000"),
		}, &stubQuotaService{})

		rec := do(h, "POST", "/api/user/wallet/withdraw", "user-token",
			`{"amount":"100","payment_method":"bank_transfer"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "minimum withdrawal amount")
	})

	t.Run("quota consume conflict", func(t *testing.T) {
		h := newServer(&stubSettlementService{}, &stubQuotaService{err: apperrors.ErrQuotaExceeded})

		rec := do(h, "POST", "/api/user/quota/consume", "user-token", `{"type":"messages","amount":10}`)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("admin surface is role gated", func(t *testing.T) {
		h := newServer(&stubSettlementService{}, &stubQuotaService{})

		rec := do(h, "GET", "/api/admin/withdrawals/pending", "user-token", "")
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(h, "GET", "/api/admin/withdrawals/pending", "admin-token", "")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("admin approve maps state conflicts", func(t *testing.T) {
		h := newServer(&stubSettlementService{err: apperrors.ErrInvalidStateTransition}, &stubQuotaService{})

		rec := do(h, "POST", "/api/admin/transactions/"+uuid.NewString()+"/approve", "admin-token", `{}`)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown path", func(t *testing.T) {
		h := newServer(&stubSettlementService{}, &stubQuotaService{})

		rec := do(h, "GET", "/api/user/nope", "user-token", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
