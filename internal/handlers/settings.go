package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/handlers/render"
	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

type withdrawalSettingsResponse struct {
	AutoApproveThreshold decimal.Decimal `json:"auto_approve_threshold"`
	MinWithdrawal        decimal.Decimal `json:"min_withdrawal"`
	MaxWithdrawal        decimal.Decimal `json:"max_withdrawal"`
	FeePercentage        decimal.Decimal `json:"fee_percentage"`
	FeeFixed             decimal.Decimal `json:"fee_fixed"`
}

func toSettingsResponse(s models.WithdrawalSettings) withdrawalSettingsResponse {
	return withdrawalSettingsResponse{
		AutoApproveThreshold: s.AutoApproveThreshold,
		MinWithdrawal:        s.MinWithdrawal,
		MaxWithdrawal:        s.MaxWithdrawal,
		FeePercentage:        s.FeePercentage,
		FeeFixed:             s.FeeFixed,
	}
}

func handleGetWithdrawalSettings(settlementService settlementService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		settings, err := settlementService.GetWithdrawalSettings(r.Context())
		if err != nil {
			l.Error("Failed to get withdrawal settings", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toSettingsResponse(settings))
	})
}

func handleUpdateWithdrawalSettings(settlementService settlementService, l logger.Logger) http.Handler {
	// Absent fields keep their stored values
	type request struct {
		AutoApproveThreshold *decimal.Decimal `json:"auto_approve_threshold"`
		MinWithdrawal        *decimal.Decimal `json:"min_withdrawal"`
		MaxWithdrawal        *decimal.Decimal `json:"max_withdrawal"`
		FeePercentage        *decimal.Decimal `json:"fee_percentage"`
		FeeFixed             *decimal.Decimal `json:"fee_fixed"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		settings, err := settlementService.UpdateWithdrawalSettings(r.Context(), repository.UpdateSettingsParams{
			AutoApproveThreshold: data.AutoApproveThreshold,
			MinWithdrawal:        data.MinWithdrawal,
			MaxWithdrawal:        data.MaxWithdrawal,
			FeePercentage:        data.FeePercentage,
			FeeFixed:             data.FeeFixed,
		})
		if err != nil {
			var validationErr *apperrors.ValidationError

			switch {
			case errors.As(err, &validationErr):
				render.ValidationFailed(w, validationErr.Violations)
			default:
				l.Error("Failed to update withdrawal settings", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, toSettingsResponse(settings))
	})
}
