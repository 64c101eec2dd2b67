package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/handlers/render"
	"github.com/ntduong/agentpay/internal/handlers/userctx"
	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/service/settlement"
)

func handleWalletBalance(settlementService settlementService, l logger.Logger) http.Handler {
	type response struct {
		Balance  decimal.Decimal `json:"balance"`
		Currency string          `json:"currency"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		wallet, err := settlementService.GetWallet(r.Context(), user.ID)
		if err != nil {
			l.Error("Failed to get wallet", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Balance: wallet.Balance, Currency: wallet.Currency})
	})
}

func handleDeposit(settlementService settlementService, l logger.Logger) http.Handler {
	type request struct {
		Amount        decimal.Decimal `json:"amount"`
		PaymentMethod string          `json:"payment_method" validate:"required"`
		PaymentInfo   models.Metadata `json:"payment_info"`
		Description   string          `json:"description"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		t, err := settlementService.CreateTransaction(r.Context(), settlement.CreateTransactionParams{
			UserID:        user.ID,
			Type:          models.TransactionTypeDeposit,
			Amount:        data.Amount,
			PaymentMethod: &data.PaymentMethod,
			PaymentInfo:   data.PaymentInfo,
			Description:   data.Description,
		})
		if err != nil {
			renderTransactionError(w, l, err)
			return
		}

		render.JSONWithStatus(w, toTransactionResponse(t), http.StatusCreated)
	})
}

func handleWithdraw(settlementService settlementService, l logger.Logger) http.Handler {
	type request struct {
		Amount        decimal.Decimal `json:"amount"`
		PaymentMethod string          `json:"payment_method" validate:"required"`
		PaymentInfo   models.Metadata `json:"payment_info"`
		Description   string          `json:"description"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		t, err := settlementService.CreateTransaction(r.Context(), settlement.CreateTransactionParams{
			UserID:        user.ID,
			Type:          models.TransactionTypeWithdrawal,
			Amount:        data.Amount,
			PaymentMethod: &data.PaymentMethod,
			PaymentInfo:   data.PaymentInfo,
			Description:   data.Description,
		})
		if err != nil {
			renderTransactionError(w, l, err)
			return
		}

		render.JSONWithStatus(w, toTransactionResponse(t), http.StatusCreated)
	})
}

func renderTransactionError(w http.ResponseWriter, l logger.Logger, err error) {
	var validationErr *apperrors.ValidationError

	switch {
	case errors.As(err, &validationErr):
		render.ValidationFailed(w, validationErr.Violations)
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
	default:
		l.Error("Failed to create transaction", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
