package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
)

// Commission is one attributable sale. TransactionReference is the
// idempotency key supplied by the payment confirmation producer.
type Commission struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ResellerID           uuid.UUID              `gorm:"column:reseller_id;type:uuid;not null;index:idx_commissions_reseller_status,priority:1"`
	TransactionReference string                 `gorm:"column:transaction_reference;not null;uniqueIndex:ux_commissions_transaction_reference"`
	ClientName           string                 `gorm:"column:client_name"`
	ProductName          string                 `gorm:"column:product_name"`
	ClientMetadata       dbtypes.JSON           `gorm:"column:client_metadata;type:jsonb"`
	SaleAmount           decimal.Decimal        `gorm:"column:sale_amount;type:numeric(12,2);not null"`
	CommissionRate       decimal.Decimal        `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	Amount               decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Status               enums.CommissionStatus `gorm:"column:status;type:commission_status;not null;index:idx_commissions_reseller_status,priority:2"`
	Notes                string                 `gorm:"column:notes"`
	CalculationDate      time.Time              `gorm:"column:calculation_date;not null"`
	ApprovalDate         *time.Time             `gorm:"column:approval_date"`
	PaidDate             *time.Time             `gorm:"column:paid_date"`
	InvoiceID            *uuid.UUID             `gorm:"column:invoice_id;type:uuid;index:idx_commissions_invoice_id"`
	PayoutID             *uuid.UUID             `gorm:"column:payout_id;type:uuid;index:idx_commissions_payout_id"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Commission) TableName() string { return "commissions" }

func (c *Commission) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
