package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/pkg/enums"
)

// InvoiceRow is a paid invoice as read for the feed.
type InvoiceRow struct {
	ID           uuid.UUID
	TotalAmount  decimal.Decimal
	Status       enums.InvoiceStatus
	PaymentDate  *time.Time
	Counterparty string
}

// PayoutRow is a non-cancelled payout as read for the feed.
type PayoutRow struct {
	ID             uuid.UUID
	Amount         decimal.Decimal
	Status         enums.PayoutStatus
	PaymentMethod  enums.PayoutMethod
	RequestDate    time.Time
	ProcessDate    *time.Time
	CompletionDate *time.Time
	Counterparty   string
}

// DatedAmount is one settled amount and when it settled.
type DatedAmount struct {
	Date   time.Time
	Amount decimal.Decimal
	Method string
}

// Window is the database-side part of a feed filter.
type Window struct {
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
}

// Repository reads the two sources the feed merges. It never writes.
type Repository interface {
	PaidInvoices(ctx context.Context, window Window, limit int) ([]InvoiceRow, error)
	ActivePayouts(ctx context.Context, window Window, limit int) ([]PayoutRow, error)
	InvoicePayments(ctx context.Context, from, to time.Time) ([]DatedAmount, error)
	PayoutCompletions(ctx context.Context, from, to time.Time) ([]DatedAmount, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a feed repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) PaidInvoices(ctx context.Context, window Window, limit int) ([]InvoiceRow, error) {
	q := r.db.WithContext(ctx).
		Table("invoices AS i").
		Select("i.id, i.total_amount, i.status, i.payment_date, COALESCE(rs.company_name, '') AS counterparty").
		Joins("LEFT JOIN resellers rs ON rs.id = i.reseller_id").
		Where("i.status = ?", enums.InvoiceStatusPaid)
	if window.From != nil {
		q = q.Where("i.payment_date >= ?", *window.From)
	}
	if window.To != nil {
		q = q.Where("i.payment_date <= ?", *window.To)
	}
	if window.MinAmount != nil {
		q = q.Where("i.total_amount >= ?", *window.MinAmount)
	}
	if window.MaxAmount != nil {
		q = q.Where("i.total_amount <= ?", *window.MaxAmount)
	}
	var rows []InvoiceRow
	if err := q.Order("i.payment_date DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ActivePayouts(ctx context.Context, window Window, limit int) ([]PayoutRow, error) {
	q := r.db.WithContext(ctx).
		Table("payouts AS p").
		Select("p.id, p.amount, p.status, p.payment_method, p.request_date, p.process_date, p.completion_date, COALESCE(rs.company_name, '') AS counterparty").
		Joins("LEFT JOIN resellers rs ON rs.id = p.reseller_id").
		Where("p.status <> ?", enums.PayoutStatusCancelled)
	if window.From != nil {
		q = q.Where("p.request_date >= ?", *window.From)
	}
	if window.To != nil {
		q = q.Where("p.request_date <= ?", *window.To)
	}
	if window.MinAmount != nil {
		q = q.Where("p.amount >= ?", *window.MinAmount)
	}
	if window.MaxAmount != nil {
		q = q.Where("p.amount <= ?", *window.MaxAmount)
	}
	var rows []PayoutRow
	if err := q.Order("p.request_date DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) InvoicePayments(ctx context.Context, from, to time.Time) ([]DatedAmount, error) {
	var rows []DatedAmount
	err := r.db.WithContext(ctx).
		Table("invoices").
		Select("payment_date AS date, total_amount AS amount, 'invoice' AS method").
		Where("status = ?", enums.InvoiceStatusPaid).
		Where("payment_date >= ? AND payment_date <= ?", from, to).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) PayoutCompletions(ctx context.Context, from, to time.Time) ([]DatedAmount, error) {
	var rows []DatedAmount
	err := r.db.WithContext(ctx).
		Table("payouts").
		Select("completion_date AS date, amount, payment_method AS method").
		Where("status = ?", enums.PayoutStatusCompleted).
		Where("completion_date >= ? AND completion_date <= ?", from, to).
		Scan(&rows).Error
	return rows, err
}
