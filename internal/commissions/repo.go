package commissions

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

// Filter narrows commission reads. Zero values mean "any".
type Filter struct {
	ResellerID *uuid.UUID
	Statuses   []enums.CommissionStatus
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	From       *time.Time
	To         *time.Time
	Search     string
	Uninvoiced bool
}

// Repository manages persistence for commissions. Methods prefixed with Lock
// take row locks and must run inside a transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, commission *models.Commission) error
	Save(ctx context.Context, commission *models.Commission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	ExistsByReference(ctx context.Context, reference string) (bool, error)
	List(ctx context.Context, filter Filter, page pagination.Params) ([]models.Commission, int64, error)
	ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Commission, error)
	ListIDs(ctx context.Context, filter Filter, limit int) ([]uuid.UUID, error)
	AmountsByStatus(ctx context.Context, filter Filter) ([]StatusAmount, error)

	LockEligibleForInvoice(ctx context.Context, resellerID uuid.UUID, ids []uuid.UUID, from, to *time.Time) ([]models.Commission, error)
	LockApprovedUnlinked(ctx context.Context, resellerID uuid.UUID, ids []uuid.UUID) ([]models.Commission, error)
	LockByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Commission, error)
	LockByPayout(ctx context.Context, payoutID uuid.UUID) ([]models.Commission, error)
	SetInvoice(ctx context.Context, ids []uuid.UUID, invoiceID *uuid.UUID) error
	ClearInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error)
	SetPayout(ctx context.Context, ids []uuid.UUID, payoutID *uuid.UUID) error
	ClearPayout(ctx context.Context, payoutID uuid.UUID) (int64, error)
	MarkPaid(ctx context.Context, ids []uuid.UUID, paidAt time.Time) error
}

// StatusAmount is one commission's status and amount, used for Go-side totals.
type StatusAmount struct {
	Status     enums.CommissionStatus
	Amount     decimal.Decimal
	SaleAmount decimal.Decimal
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, commission *models.Commission) error {
	return r.db.WithContext(ctx).Create(commission).Error
}

func (r *repository) Save(ctx context.Context, commission *models.Commission) error {
	return r.db.WithContext(ctx).Save(commission).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	if err := r.db.WithContext(ctx).First(&commission, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&commission, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *repository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("transaction_reference = ?", reference).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) List(ctx context.Context, filter Filter, page pagination.Params) ([]models.Commission, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Model(&models.Commission{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	var rows []models.Commission
	if err := r.filtered(ctx, filter).
		Order("calculation_date DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Commission, error) {
	var rows []models.Commission
	if err := r.filtered(ctx, filter).
		Order("calculation_date DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListIDs(ctx context.Context, filter Filter, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.filtered(ctx, filter).
		Model(&models.Commission{}).
		Order("calculation_date ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) AmountsByStatus(ctx context.Context, filter Filter) ([]StatusAmount, error) {
	var rows []StatusAmount
	if err := r.filtered(ctx, filter).
		Model(&models.Commission{}).
		Select("status", "amount", "sale_amount").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LockEligibleForInvoice(ctx context.Context, resellerID uuid.UUID, ids []uuid.UUID, from, to *time.Time) ([]models.Commission, error) {
	q := db.ForUpdate(r.db.WithContext(ctx)).
		Where("reseller_id = ?", resellerID).
		Where("status = ?", enums.CommissionStatusApproved).
		Where("invoice_id IS NULL")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if from != nil {
		q = q.Where("calculation_date >= ?", *from)
	}
	if to != nil {
		q = q.Where("calculation_date <= ?", *to)
	}
	var rows []models.Commission
	if err := q.Order("calculation_date ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LockApprovedUnlinked(ctx context.Context, resellerID uuid.UUID, ids []uuid.UUID) ([]models.Commission, error) {
	q := db.ForUpdate(r.db.WithContext(ctx)).
		Where("reseller_id = ?", resellerID).
		Where("status = ?", enums.CommissionStatusApproved).
		Where("invoice_id IS NULL").
		Where("payout_id IS NULL")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	var rows []models.Commission
	if err := q.Order("calculation_date ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LockByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Commission, error) {
	var rows []models.Commission
	if err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LockByPayout(ctx context.Context, payoutID uuid.UUID) ([]models.Commission, error) {
	var rows []models.Commission
	if err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("payout_id = ?", payoutID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SetInvoice(ctx context.Context, ids []uuid.UUID, invoiceID *uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id IN ?", ids).
		Update("invoice_id", invoiceID).Error
}

func (r *repository) ClearInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("invoice_id = ?", invoiceID).
		Update("invoice_id", nil)
	return res.RowsAffected, res.Error
}

func (r *repository) SetPayout(ctx context.Context, ids []uuid.UUID, payoutID *uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id IN ?", ids).
		Update("payout_id", payoutID).Error
}

func (r *repository) ClearPayout(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("payout_id = ?", payoutID).
		Update("payout_id", nil)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkPaid(ctx context.Context, ids []uuid.UUID, paidAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id IN ?", ids).
		Where("status <> ?", enums.CommissionStatusPaid).
		Updates(map[string]any{
			"status":    enums.CommissionStatusPaid,
			"paid_date": paidAt,
		}).Error
}

func (r *repository) filtered(ctx context.Context, filter Filter) *gorm.DB {
	q := r.db.WithContext(ctx)
	if filter.ResellerID != nil {
		q = q.Where("reseller_id = ?", *filter.ResellerID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.MinAmount != nil {
		q = q.Where("amount >= ?", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		q = q.Where("amount <= ?", *filter.MaxAmount)
	}
	if filter.From != nil {
		q = q.Where("calculation_date >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("calculation_date <= ?", *filter.To)
	}
	if filter.Uninvoiced {
		q = q.Where("invoice_id IS NULL")
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where(
			"LOWER(transaction_reference) LIKE ? OR LOWER(client_name) LIKE ? OR LOWER(product_name) LIKE ?",
			like, like, like,
		)
	}
	return q
}
