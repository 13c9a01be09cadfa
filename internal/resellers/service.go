package resellers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/internal/audit"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 5
	tierRefreshPageSize  = 200
)

// CreateInput carries onboarding data for a new reseller account.
type CreateInput struct {
	UserID       uuid.UUID
	CompanyName  string
	ReferralCode string
}

// Service manages reseller accounts outside of balance movements.
type Service struct {
	repo  Repository
	tx    ledger.TxRunner
	audit audit.Sink
	logg  *logger.Logger
}

// ServiceParams groups the dependencies of the reseller service.
type ServiceParams struct {
	Repo   Repository
	Tx     ledger.TxRunner
	Audit  audit.Sink
	Logger *logger.Logger
}

// NewService wires the reseller service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reseller repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	sink := params.Audit
	if sink == nil {
		sink = audit.Discard
	}
	return &Service{repo: params.Repo, tx: params.Tx, audit: sink, logg: params.Logger}, nil
}

// Create onboards a reseller at the bronze tier with zeroed counters.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Reseller, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	name := strings.TrimSpace(input.CompanyName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company_name is required")
	}

	code := strings.ToUpper(strings.TrimSpace(input.ReferralCode))
	if code == "" {
		generated, err := s.generateReferralCode(ctx)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	reseller := &models.Reseller{
		UserID:                input.UserID,
		CompanyName:           name,
		ReferralCode:          code,
		Tier:                  enums.ResellerTierBronze,
		CommissionRate:        RateForTier(enums.ResellerTierBronze),
		TotalSales:            decimal.Zero,
		TotalCommissionEarned: decimal.Zero,
		TotalCommissionPaid:   decimal.Zero,
		PendingCommission:     decimal.Zero,
		IsActive:              true,
	}
	if err := s.repo.Create(ctx, reseller); err != nil {
		if db.IsUniqueViolation(err, "referral_code") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "referral code %s already in use", code)
		}
		if db.IsUniqueViolation(err, "user_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "user already has a reseller account")
		}
		return nil, ledger.WriteError(err, "create reseller")
	}
	return reseller, nil
}

func (s *Service) generateReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		candidate := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:referralCodeLength])
		exists, err := s.repo.ReferralCodeExists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check referral code")
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique referral code")
}

// Get returns the reseller account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Reseller, error) {
	reseller, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ledger.LoadError(err, "reseller", id)
	}
	return reseller, nil
}

// SetRate pins a manual commission rate, or clears the pin when rate is nil.
func (s *Service) SetRate(ctx context.Context, id uuid.UUID, rate *decimal.Decimal) (*models.Reseller, error) {
	if rate != nil && (!rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(100))) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 100")
	}

	var updated *models.Reseller
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		reseller, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, "reseller", id)
		}
		if rate != nil {
			reseller.CommissionRate = money.Round(*rate)
			reseller.RateOverride = true
		} else {
			reseller.RateOverride = false
			reseller.CommissionRate = RateForTier(reseller.Tier)
		}
		if err := repo.SaveTier(ctx, reseller); err != nil {
			return ledger.WriteError(err, "save reseller rate")
		}
		updated = reseller
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RefreshTier re-derives tier and default rate from total sales. A pinned
// manual rate is kept while the tier still moves.
func (s *Service) RefreshTier(ctx context.Context, id uuid.UUID) (bool, error) {
	var (
		changed  bool
		previous enums.ResellerTier
		current  *models.Reseller
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		reseller, err := repo.LockByID(ctx, id)
		if err != nil {
			return ledger.LoadError(err, "reseller", id)
		}
		previous = reseller.Tier
		tier := TierForSales(reseller.TotalSales)
		rate := reseller.CommissionRate
		if !reseller.RateOverride {
			rate = RateForTier(tier)
		}
		if tier == reseller.Tier && rate.Equal(reseller.CommissionRate) {
			return nil
		}
		reseller.Tier = tier
		reseller.CommissionRate = rate
		if err := repo.SaveTier(ctx, reseller); err != nil {
			return ledger.WriteError(err, "save reseller tier")
		}
		changed = true
		current = reseller
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed && current.Tier != previous {
		s.audit.Record(ctx, audit.Entry{
			Action:          enums.AuditResellerTierChange,
			ResourceType:    "reseller",
			ResourceIDs:     []string{id.String()},
			ResourceDisplay: current.CompanyName,
			Details: map[string]any{
				"from": previous,
				"to":   current.Tier,
				"rate": money.Format(current.CommissionRate),
			},
		})
	}
	return changed, nil
}

// RefreshAllTiers walks every active reseller and returns how many changed.
func (s *Service) RefreshAllTiers(ctx context.Context) (int, error) {
	var (
		changed int
		errs    error
		after   uuid.UUID
	)
	for {
		ids, err := s.repo.ListActiveIDs(ctx, after, tierRefreshPageSize)
		if err != nil {
			return changed, multierr.Append(errs, fmt.Errorf("list resellers: %w", err))
		}
		for _, id := range ids {
			ok, err := s.RefreshTier(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reseller %s: %w", id, err))
				continue
			}
			if ok {
				changed++
			}
		}
		if len(ids) < tierRefreshPageSize {
			return changed, errs
		}
		after = ids[len(ids)-1]
	}
}

// Progress describes how far a reseller is from the next tier.
type Progress struct {
	Tier           enums.ResellerTier `json:"tier"`
	CommissionRate string             `json:"commission_rate"`
	TotalSales     string             `json:"total_sales"`
	NextTier       enums.ResellerTier `json:"next_tier,omitempty"`
	SalesToNext    string             `json:"sales_to_next,omitempty"`
}

// TierProgress reports the reseller's tier standing.
func (s *Service) TierProgress(ctx context.Context, id uuid.UUID) (*Progress, error) {
	reseller, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	progress := &Progress{
		Tier:           reseller.Tier,
		CommissionRate: money.Format(reseller.CommissionRate),
		TotalSales:     money.Format(reseller.TotalSales),
	}
	if next, remaining, ok := NextTier(reseller.Tier, reseller.TotalSales); ok {
		progress.NextTier = next
		progress.SalesToNext = money.Format(remaining)
	}
	return progress, nil
}
