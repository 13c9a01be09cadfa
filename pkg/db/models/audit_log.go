package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
)

// AuditLog is an append-only record of an admin or system state change.
type AuditLog struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Action          enums.AuditAction `gorm:"column:action;not null;index:idx_audit_logs_action"`
	ActorID         string            `gorm:"column:actor_id"`
	ResourceType    string            `gorm:"column:resource_type;not null"`
	ResourceIDs     dbtypes.JSON      `gorm:"column:resource_ids;type:jsonb"`
	ResourceDisplay string            `gorm:"column:resource_display"`
	Details         dbtypes.JSON      `gorm:"column:details;type:jsonb"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
