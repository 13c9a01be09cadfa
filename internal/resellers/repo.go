package resellers

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
)

// Repository manages persistence for reseller accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reseller *models.Reseller) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reseller, error)
	// LockByID reads the reseller with a row lock held until the transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Reseller, error)
	SaveBalances(ctx context.Context, reseller *models.Reseller) error
	SaveTier(ctx context.Context, reseller *models.Reseller) error
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	ListEligibleForPayout(ctx context.Context, minAmount decimal.Decimal, ids []uuid.UUID, limit int) ([]models.Reseller, error)
	ListActiveIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reseller repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reseller *models.Reseller) error {
	return r.db.WithContext(ctx).Create(reseller).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reseller, error) {
	var reseller models.Reseller
	if err := r.db.WithContext(ctx).First(&reseller, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reseller, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Reseller, error) {
	var reseller models.Reseller
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&reseller, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reseller, nil
}

func (r *repository) SaveBalances(ctx context.Context, reseller *models.Reseller) error {
	return r.db.WithContext(ctx).
		Model(&models.Reseller{}).
		Where("id = ?", reseller.ID).
		Updates(map[string]any{
			"pending_commission":      reseller.PendingCommission,
			"total_commission_paid":   reseller.TotalCommissionPaid,
			"total_commission_earned": reseller.TotalCommissionEarned,
			"total_sales":             reseller.TotalSales,
		}).Error
}

func (r *repository) SaveTier(ctx context.Context, reseller *models.Reseller) error {
	return r.db.WithContext(ctx).
		Model(&models.Reseller{}).
		Where("id = ?", reseller.ID).
		Updates(map[string]any{
			"tier":            reseller.Tier,
			"commission_rate": reseller.CommissionRate,
			"rate_override":   reseller.RateOverride,
		}).Error
}

func (r *repository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Reseller{}).
		Where("referral_code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListEligibleForPayout(ctx context.Context, minAmount decimal.Decimal, ids []uuid.UUID, limit int) ([]models.Reseller, error) {
	q := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("pending_commission >= ?", minAmount).
		Where("pending_commission > ?", 0)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Reseller
	if err := q.Order("pending_commission DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListActiveIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	q := r.db.WithContext(ctx).Model(&models.Reseller{}).Where("is_active = ?", true)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	var ids []uuid.UUID
	if err := q.Order("id ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
