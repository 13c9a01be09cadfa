package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
)

// ScheduledReport is a recurring export driven by a five-field cron schedule.
type ScheduledReport struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name       string             `gorm:"column:name;not null"`
	ReportType enums.ReportType   `gorm:"column:report_type;not null"`
	Format     enums.ExportFormat `gorm:"column:format;not null"`
	Schedule   string             `gorm:"column:schedule;not null"`
	Recipients dbtypes.JSON       `gorm:"column:recipients;type:jsonb"`
	Parameters dbtypes.JSON       `gorm:"column:parameters;type:jsonb"`
	IsActive   bool               `gorm:"column:is_active;not null;default:true"`
	LastRunAt  *time.Time         `gorm:"column:last_run_at"`
	NextRunAt  *time.Time         `gorm:"column:next_run_at;index:idx_scheduled_reports_next_run_at"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (ScheduledReport) TableName() string { return "scheduled_reports" }

func (s *ScheduledReport) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// All lists every model in migration order.
func All() []any {
	return []any{
		&Reseller{},
		&Invoice{},
		&Payout{},
		&Commission{},
		&AuditLog{},
		&ScheduledReport{},
	}
}
