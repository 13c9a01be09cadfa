// Package resellers exposes reseller onboarding, balances and tier controls.
package resellers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/earnings-ledger/api/responses"
	"github.com/angelmondragon/earnings-ledger/api/validators"
	internalresellers "github.com/angelmondragon/earnings-ledger/internal/resellers"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

type Service interface {
	Create(ctx context.Context, input internalresellers.CreateInput) (*models.Reseller, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Reseller, error)
	SetRate(ctx context.Context, id uuid.UUID, rate *decimal.Decimal) (*models.Reseller, error)
	RefreshTier(ctx context.Context, id uuid.UUID) (bool, error)
	TierProgress(ctx context.Context, id uuid.UUID) (*internalresellers.Progress, error)
}

// Reseller is the API representation of a reseller account and its counters.
type Reseller struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"user_id"`
	CompanyName           string          `json:"company_name"`
	ReferralCode          string          `json:"referral_code"`
	Tier                  string          `json:"tier"`
	CommissionRate        decimal.Decimal `json:"commission_rate"`
	RateOverride          bool            `json:"rate_override"`
	TotalSales            decimal.Decimal `json:"total_sales"`
	TotalCommissionEarned decimal.Decimal `json:"total_commission_earned"`
	TotalCommissionPaid   decimal.Decimal `json:"total_commission_paid"`
	PendingCommission     decimal.Decimal `json:"pending_commission"`
	AvailableBalance      decimal.Decimal `json:"available_balance"`
	IsActive              bool            `json:"is_active"`
	CreatedAt             time.Time       `json:"created_at"`
}

func toReseller(r *models.Reseller) Reseller {
	return Reseller{
		ID:                    r.ID.String(),
		UserID:                r.UserID.String(),
		CompanyName:           r.CompanyName,
		ReferralCode:          r.ReferralCode,
		Tier:                  string(r.Tier),
		CommissionRate:        r.CommissionRate,
		RateOverride:          r.RateOverride,
		TotalSales:            r.TotalSales,
		TotalCommissionEarned: r.TotalCommissionEarned,
		TotalCommissionPaid:   r.TotalCommissionPaid,
		PendingCommission:     r.PendingCommission,
		AvailableBalance:      r.AvailableBalance(),
		IsActive:              r.IsActive,
		CreatedAt:             r.CreatedAt,
	}
}

type createRequest struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	CompanyName  string `json:"company_name" validate:"required,max=255"`
	ReferralCode string `json:"referral_code" validate:"omitempty,alphanum,max=32"`
}

type rateRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate" validate:"omitempty,percent"`
}

func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reseller, err := svc.Create(r.Context(), internalresellers.CreateInput{
			UserID:       uuid.MustParse(req.UserID),
			CompanyName:  req.CompanyName,
			ReferralCode: req.ReferralCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toReseller(reseller))
	}
}

func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reseller, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toReseller(reseller))
	}
}

// SetRate pins {"commission_rate"}; a null rate returns the reseller to its
// tier rate.
func SetRate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req rateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reseller, err := svc.SetRate(r.Context(), id, req.CommissionRate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toReseller(reseller))
	}
}

// Tier re-derives the tier from total sales and reports the standing.
func Tier(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if r.Method == http.MethodPost {
			changed, err := svc.RefreshTier(r.Context(), id)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if changed {
				logg.Info(logg.WithResellerID(r.Context(), id.String()), "reseller tier changed")
			}
		}
		progress, err := svc.TierProgress(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, progress)
	}
}
