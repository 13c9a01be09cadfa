package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
)

// Invoice batches approved commissions for one reseller. LineItems is a
// snapshot taken at generation time and never rewritten.
type Invoice struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ResellerID    uuid.UUID           `gorm:"column:reseller_id;type:uuid;not null;index:idx_invoices_reseller_id"`
	InvoiceNumber string              `gorm:"column:invoice_number;not null;uniqueIndex:ux_invoices_invoice_number"`
	PeriodStart   time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd     time.Time           `gorm:"column:period_end;not null"`
	Subtotal      decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxAmount     decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status        enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;index:idx_invoices_status"`
	IssueDate     time.Time           `gorm:"column:issue_date;not null"`
	DueDate       time.Time           `gorm:"column:due_date;not null"`
	PaymentDate   *time.Time          `gorm:"column:payment_date"`
	Description   string              `gorm:"column:description"`
	Notes         string              `gorm:"column:notes"`
	LineItems     dbtypes.JSON        `gorm:"column:line_items;type:jsonb"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// InvoiceLineItem is one entry of Invoice.LineItems.
type InvoiceLineItem struct {
	CommissionID uuid.UUID `json:"commission_id"`
	Description  string    `json:"description"`
	Amount       string    `json:"amount"`
	Reference    string    `json:"reference"`
	Date         string    `json:"date"`
}
