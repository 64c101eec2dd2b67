package handlers

import (
	"errors"
	"net/http"
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

type packageResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Quota        int64           `json:"quota"`
	Price        decimal.Decimal `json:"price"`
	DurationDays *int32          `json:"duration_days,omitempty"`
	Description  string          `json:"description,omitempty"`
	Features     []string        `json:"features,omitempty"`
	IsActive     bool            `json:"is_active"`
}

func toPackageResponse(p models.ServicePackage) packageResponse {
	return packageResponse{
		ID:           p.ID,
		Name:         p.Name,
		Type:         p.Type,
		Quota:        p.Quota,
		Price:        p.Price,
		DurationDays: p.DurationDays,
		Description:  p.Description,
		Features:     p.Features,
		IsActive:     p.IsActive,
	}
}

type userPackageResponse struct {
	ID          uuid.UUID  `json:"id"`
	PackageID   uuid.UUID  `json:"package_id"`
	QuotaUsed   int64      `json:"quota_used"`
	QuotaTotal  int64      `json:"quota_total"`
	Remaining   int64      `json:"remaining"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Status      string     `json:"status"`
	IsActive    bool       `json:"is_active"`
	PurchasedAt time.Time  `json:"purchased_at"`
}

func toUserPackageResponse(p models.UserPackage) userPackageResponse {
	return userPackageResponse{
		ID:          p.ID,
		PackageID:   p.PackageID,
		QuotaUsed:   p.QuotaUsed,
		QuotaTotal:  p.QuotaTotal,
		Remaining:   p.Remaining(),
		ExpiresAt:   p.ExpiresAt,
		Status:      p.Status,
		IsActive:    p.IsActive(),
		PurchasedAt: p.PurchasedAt,
	}
}

func toUserPackageResponses(ps []models.UserPackage) []userPackageResponse {
	out := make([]userPackageResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toUserPackageResponse(p))
	}
	return out
}

// User panel catalog: active packages only
func handleListPackages(settlementService settlementService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Admins may ask for the full catalog with ?all=true
		onlyActive := r.URL.Query().Get("all") != "true"
		if user, ok := userctx.FromContext(r.Context()); !ok || !user.IsAdmin {
			onlyActive = true
		}

		packages, err := settlementService.ListPackages(r.Context(), onlyActive)
		if err != nil {
			l.Error("Failed to list packages", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		out := make([]packageResponse, 0, len(packages))
		for _, p := range packages {
			out = append(out, toPackageResponse(p))
		}
		render.JSON(w, out)
	})
}

func handlePurchasePackage(settlementService settlementService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		packageID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid package id", http.StatusBadRequest)
			return
		}

		grant, err := settlementService.PurchasePackage(r.Context(), user.ID, packageID)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrPackageNotFound):
				render.ServiceError(w, "Package not found", http.StatusNotFound)
			case errors.Is(err, apperrors.ErrPackageInactive):
				render.ServiceError(w, "Package is not available", http.StatusConflict)
			case errors.Is(err, apperrors.ErrInsufficientFunds):
				render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
			default:
				l.Error("Failed to purchase package", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, toUserPackageResponse(grant), http.StatusCreated)
	})
}

func handleListUserPackages(quotaService quotaService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		packages, err := quotaService.ListUserPackages(r.Context(), user.ID)
		if err != nil {
			l.Error("Failed to list user packages", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, toUserPackageResponses(packages))
	})
}

// handleConsumeQuota draws quota for one resource type across all the user's
// usable grants.
func handleConsumeQuota(quotaService quotaService, l logger.Logger) http.Handler {
	type request struct {
		Type   string `json:"type" validate:"required"`
		Amount int64  `json:"amount" validate:"required,gt=0"`
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

		touched, err := quotaService.Consume(r.Context(), user.ID, data.Type, data.Amount)
		if err != nil {
			renderQuotaError(w, l, err)
			return
		}

		render.JSON(w, toUserPackageResponses(touched))
	})
}

// handleUseQuota draws quota from one specific grant
func handleUseQuota(quotaService quotaService, l logger.Logger) http.Handler {
	type request struct {
		UserPackageID uuid.UUID `json:"user_package_id" validate:"required"`
		Amount        int64     `json:"amount" validate:"required,gt=0"`
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

		grant, err := quotaService.UseQuota(r.Context(), user.ID, data.UserPackageID, data.Amount)
		if err != nil {
			renderQuotaError(w, l, err)
			return
		}

		render.JSON(w, toUserPackageResponse(grant))
	})
}

func handleQuotaRemaining(quotaService quotaService, l logger.Logger) http.Handler {
	type response struct {
		Type      string `json:"type"`
		Remaining int64  `json:"remaining"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		packageType := r.PathValue("type")

		remaining, err := quotaService.Remaining(r.Context(), user.ID, packageType)
		if err != nil {
			l.Error("Failed to get remaining quota", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Type: packageType, Remaining: remaining})
	})
}

func handleCreatePackage(settlementService settlementService, l logger.Logger) http.Handler {
	type request struct {
		Name         string          `json:"name" validate:"required"`
		Type         string          `json:"type" validate:"required,oneof=messages api_calls storage"`
		Quota        int64           `json:"quota" validate:"required,gt=0"`
		Price        decimal.Decimal `json:"price"`
		DurationDays *int32          `json:"duration_days"`
		Description  string          `json:"description"`
		Features     []string        `json:"features"`
		IsActive     bool            `json:"is_active"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pkg, err := settlementService.CreatePackage(r.Context(), repository.CreatePackageParams{
			Name:         data.Name,
			Type:         data.Type,
			Quota:        data.Quota,
			Price:        data.Price,
			DurationDays: data.DurationDays,
			Description:  data.Description,
			Features:     data.Features,
			IsActive:     data.IsActive,
		})
		if err != nil {
			renderPackageError(w, l, err)
			return
		}

		render.JSONWithStatus(w, toPackageResponse(pkg), http.StatusCreated)
	})
}

func handleUpdatePackage(settlementService settlementService, l logger.Logger) http.Handler {
	type request struct {
		Name         string          `json:"name" validate:"required"`
		Type         string          `json:"type" validate:"required,oneof=messages api_calls storage"`
		Quota        int64           `json:"quota" validate:"required,gt=0"`
		Price        decimal.Decimal `json:"price"`
		DurationDays *int32          `json:"duration_days"`
		Description  string          `json:"description"`
		Features     []string        `json:"features"`
		IsActive     bool            `json:"is_active"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid package id", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		existing, err := settlementService.GetPackage(r.Context(), id)
		if err != nil {
			renderPackageError(w, l, err)
			return
		}

		existing.Name = data.Name
		existing.Type = data.Type
		existing.Quota = data.Quota
		existing.Price = data.Price
		existing.DurationDays = data.DurationDays
		existing.Description = data.Description
		existing.Features = data.Features
		existing.IsActive = data.IsActive

		pkg, err := settlementService.UpdatePackage(r.Context(), existing)
		if err != nil {
			renderPackageError(w, l, err)
			return
		}

		render.JSON(w, toPackageResponse(pkg))
	})
}

func renderQuotaError(w http.ResponseWriter, l logger.Logger, err error) {
	var validationErr *apperrors.ValidationError

	switch {
	case errors.As(err, &validationErr):
		render.ValidationFailed(w, validationErr.Violations)
	case errors.Is(err, apperrors.ErrUserPackageNotFound):
		render.ServiceError(w, "Quota grant not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		render.ServiceError(w, "Not enough quota", http.StatusConflict)
	default:
		l.Error("Failed to consume quota", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func renderPackageError(w http.ResponseWriter, l logger.Logger, err error) {
	var validationErr *apperrors.ValidationError

	switch {
	case errors.As(err, &validationErr):
		render.ValidationFailed(w, validationErr.Violations)
	case errors.Is(err, apperrors.ErrPackageNotFound):
		render.ServiceError(w, "Package not found", http.StatusNotFound)
	default:
		l.Error("Failed to manage package", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
