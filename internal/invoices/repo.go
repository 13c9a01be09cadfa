package invoices

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	"github.com/angelmondragon/earnings-ledger/pkg/pagination"
)

// Filter narrows invoice reads.
type Filter struct {
	ResellerID *uuid.UUID
	Statuses   []enums.InvoiceStatus
	IssuedFrom *time.Time
	IssuedTo   *time.Time
	Search     string
}

// Repository manages persistence for invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) error
	Save(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	LastNumberWithPrefix(ctx context.Context, prefix string) (string, error)
	List(ctx context.Context, filter Filter, page pagination.Params) ([]models.Invoice, int64, error)
	ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Invoice, error)
	ListTotals(ctx context.Context, filter Filter) ([]models.Invoice, error)
	MarkOverdue(ctx context.Context, today time.Time) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an invoice repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) Save(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// LastNumberWithPrefix returns the highest invoice number starting with
// prefix, or "" when the month has none yet. Sequences are zero padded to a
// minimum width only, so longer numbers rank first.
func (r *repository) LastNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	var numbers []string
	if err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("invoice_number LIKE ?", prefix+"%").
		Order("LENGTH(invoice_number) DESC").
		Order("invoice_number DESC").
		Limit(1).
		Pluck("invoice_number", &numbers).Error; err != nil {
		return "", err
	}
	if len(numbers) == 0 {
		return "", nil
	}
	return numbers[0], nil
}

func (r *repository) List(ctx context.Context, filter Filter, page pagination.Params) ([]models.Invoice, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Model(&models.Invoice{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	var rows []models.Invoice
	if err := r.filtered(ctx, filter).
		Order("issue_date DESC").
		Order("invoice_number DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) ListTotals(ctx context.Context, filter Filter) ([]models.Invoice, error) {
	var rows []models.Invoice
	if err := r.filtered(ctx, filter).
		Select("id", "status", "subtotal", "tax_amount", "total_amount").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkOverdue flips sent invoices due before today and returns their ids.
func (r *repository) MarkOverdue(ctx context.Context, today time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.ForUpdate(tx).
			Model(&models.Invoice{}).
			Where("status = ?", enums.InvoiceStatusSent).
			Where("due_date < ?", today).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&models.Invoice{}).
			Where("id IN ?", ids).
			Where("status = ?", enums.InvoiceStatusSent).
			Update("status", enums.InvoiceStatusOverdue).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ListForExport(ctx context.Context, filter Filter, limit int) ([]models.Invoice, error) {
	var rows []models.Invoice
	if err := r.filtered(ctx, filter).
		Order("issue_date DESC").
		Order("invoice_number DESC").
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
	if filter.IssuedFrom != nil {
		q = q.Where("issue_date >= ?", *filter.IssuedFrom)
	}
	if filter.IssuedTo != nil {
		q = q.Where("issue_date <= ?", *filter.IssuedTo)
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(invoice_number) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	return q
}
