package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/pkg/enums"
)

// Reseller is a participant earning commissions. Its three balance counters
// are only mutated by the ledger services under a row lock.
type Reseller struct {
	ID                    uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID                uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_resellers_user_id"`
	CompanyName           string             `gorm:"column:company_name;not null"`
	ReferralCode          string             `gorm:"column:referral_code;not null;uniqueIndex:ux_resellers_referral_code"`
	Tier                  enums.ResellerTier `gorm:"column:tier;type:reseller_tier;not null"`
	CommissionRate        decimal.Decimal    `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	RateOverride          bool               `gorm:"column:rate_override;not null;default:false"`
	TotalSales            decimal.Decimal    `gorm:"column:total_sales;type:numeric(14,2);not null"`
	TotalCommissionEarned decimal.Decimal    `gorm:"column:total_commission_earned;type:numeric(12,2);not null"`
	TotalCommissionPaid   decimal.Decimal    `gorm:"column:total_commission_paid;type:numeric(12,2);not null"`
	PendingCommission     decimal.Decimal    `gorm:"column:pending_commission;type:numeric(12,2);not null"`
	IsActive              bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt             time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Reseller) TableName() string { return "resellers" }

func (r *Reseller) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// AvailableBalance is the amount a payout may still draw against.
func (r Reseller) AvailableBalance() decimal.Decimal {
	return r.PendingCommission
}
