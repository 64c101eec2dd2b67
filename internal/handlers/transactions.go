package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/handlers/render"
	"github.com/ntduong/agentpay/internal/handlers/userctx"
	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

type transactionResponse struct {
	ID            uuid.UUID       `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UserID        uuid.UUID       `json:"user_id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	ReferenceCode string          `json:"reference_code"`
	Description   string          `json:"description,omitempty"`
	ApprovedBy    *uuid.UUID      `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	Metadata      models.Metadata `json:"metadata,omitempty"`
}

func toTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		CreatedAt:     t.CreatedAt,
		UserID:        t.UserID,
		Type:          t.Type,
		Status:        t.Status,
		Amount:        t.Amount,
		Currency:      t.Currency,
		PaymentMethod: t.PaymentMethod,
		ReferenceCode: t.ReferenceCode,
		Description:   t.Description,
		ApprovedBy:    t.ApprovedBy,
		ApprovedAt:    t.ApprovedAt,
		Metadata:      t.Metadata,
	}
}

func toTransactionResponses(ts []models.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

// listOptsFromQuery reads the shared type/status/limit filters
func listOptsFromQuery(r *http.Request) repository.ListTransactionsOpts {
	q := r.URL.Query()

	opts := repository.ListTransactionsOpts{}
	if v := q.Get("type"); v != "" {
		opts.Types = []string{v}
	}
	if v := q.Get("status"); v != "" {
		opts.Statuses = []string{v}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			opts.Limit = limit
		}
	}

	return opts
}

func handleListTransactions(settlementService settlementService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		opts := listOptsFromQuery(r)
		opts.UserID = &user.ID

		transactions, err := settlementService.ListTransactions(r.Context(), opts)
		if err != nil {
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toTransactionResponses(transactions))
	})
}

func handleAdminListTransactions(settlementService settlementService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts := listOptsFromQuery(r)

		if v := r.URL.Query().Get("user_id"); v != "" {
			userID, err := uuid.Parse(v)
			if err != nil {
				render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
				return
			}
			opts.UserID = &userID
		}

		transactions, err := settlementService.ListTransactions(r.Context(), opts)
		if err != nil {
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toTransactionResponses(transactions))
	})
}

func handlePendingWithdrawals(settlementService settlementService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transactions, err := settlementService.PendingWithdrawals(r.Context())
		if err != nil {
			l.Error("Failed to list pending withdrawals", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toTransactionResponses(transactions))
	})
}

func handleApproveTransaction(settlementService settlementService, l logger.Logger) http.Handler {
	type request struct {
		Note string `json:"note"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid transaction id", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		t, err := settlementService.ApproveTransaction(r.Context(), id, admin.ID, data.Note)
		if err != nil {
			renderTransactionStateError(w, l, err)
			return
		}

		render.JSON(w, toTransactionResponse(t))
	})
}

func handleRejectTransaction(settlementService settlementService, l logger.Logger) http.Handler {
	type request struct {
		Reason string `json:"reason" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid transaction id", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		t, err := settlementService.RejectTransaction(r.Context(), id, admin.ID, data.Reason)
		if err != nil {
			renderTransactionStateError(w, l, err)
			return
		}

		render.JSON(w, toTransactionResponse(t))
	})
}

func renderTransactionStateError(w http.ResponseWriter, l logger.Logger, err error) {
	var validationErr *apperrors.ValidationError

	switch {
	case errors.As(err, &validationErr):
		render.ValidationFailed(w, validationErr.Violations)
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		render.ServiceError(w, "Transaction not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrInvalidStateTransition):
		render.ServiceError(w, "Transaction is not pending", http.StatusConflict)
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
	default:
		l.Error("Failed to change transaction state", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
