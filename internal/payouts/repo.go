package payouts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

// Filter narrows payout reads.
type Filter struct {
	ResellerID *uuid.UUID
	Statuses   []enums.PayoutStatus
	Methods    []enums.PayoutMethod
	From       *time.Time
	To         *time.Time
	Search     string
}

// Repository manages persistence for payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	Save(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	List(ctx context.Context, filter Filter, page pagination.Params) ([]models.Payout, int64, error)
	ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Payout, error)
	StatusAmounts(ctx context.Context, resellerID *uuid.UUID) ([]StatusAmount, error)
}

// StatusAmount is one payout's status and amount, used for Go-side totals.
type StatusAmount struct {
	Status enums.PayoutStatus
	Amount decimal.Decimal
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) Save(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Save(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("reference_number = ?", reference).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) List(ctx context.Context, filter Filter, page pagination.Params) ([]models.Payout, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Model(&models.Payout{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	var rows []models.Payout
	if err := r.filtered(ctx, filter).
		Order("request_date DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) StatusAmounts(ctx context.Context, resellerID *uuid.UUID) ([]StatusAmount, error) {
	q := r.db.WithContext(ctx).Model(&models.Payout{}).Select("status", "amount")
	if resellerID != nil {
		q = q.Where("reseller_id = ?", *resellerID)
	}
	var rows []StatusAmount
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	if err := r.filtered(ctx, filter).
		Order("request_date DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) filtered(ctx context.Context, filter Filter) *gorm.DB {
	q := r.db.WithContext(ctx)
	if filter.ResellerID != nil {
		q = q.Where("reseller_id = ?", *filter.ResellerID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if len(filter.Methods) > 0 {
		q = q.Where("payment_method IN ?", filter.Methods)
	}
	if filter.From != nil {
		q = q.Where("request_date >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("request_date <= ?", *filter.To)
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(reference_number) LIKE ? OR LOWER(transaction_id) LIKE ?", like, like)
	}
	return q
}
