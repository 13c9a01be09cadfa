package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
)

// Payout is a withdrawal against a reseller's pending balance. The amount is
// reserved when the payout is requested.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ResellerID      uuid.UUID          `gorm:"column:reseller_id;type:uuid;not null;index:idx_payouts_reseller_id"`
	InvoiceID       *uuid.UUID         `gorm:"column:invoice_id;type:uuid"`
	ReferenceNumber string             `gorm:"column:reference_number;not null;uniqueIndex:ux_payouts_reference_number"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	TransactionFee  decimal.Decimal    `gorm:"column:transaction_fee;type:numeric(12,2);not null"`
	NetAmount       decimal.Decimal    `gorm:"column:net_amount;type:numeric(12,2);not null"`
	PaymentMethod   enums.PayoutMethod `gorm:"column:payment_method;type:payout_method;not null"`
	PaymentDetails  dbtypes.JSON       `gorm:"column:payment_details;type:jsonb"`
	Status          enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;index:idx_payouts_status"`
	RequestDate     time.Time          `gorm:"column:request_date;not null"`
	ProcessDate     *time.Time         `gorm:"column:process_date"`
	CompletionDate  *time.Time         `gorm:"column:completion_date"`
	TransactionID   *string            `gorm:"column:transaction_id"`
	FailureReason   *string            `gorm:"column:failure_reason"`
	Notes           string             `gorm:"column:notes"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payout) TableName() string { return "payouts" }

func (p *Payout) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// EffectiveDate is the most advanced timestamp the payout has reached.
func (p Payout) EffectiveDate() time.Time {
	if p.CompletionDate != nil {
		return *p.CompletionDate
	}
	if p.ProcessDate != nil {
		return *p.ProcessDate
	}
	return p.RequestDate
}
