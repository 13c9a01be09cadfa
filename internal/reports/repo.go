package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
)

// Repository manages scheduled report definitions.
type Repository interface {
	Create(ctx context.Context, report *models.ScheduledReport) error
	Save(ctx context.Context, report *models.ScheduledReport) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ScheduledReport, error)
	List(ctx context.Context, activeOnly bool) ([]models.ScheduledReport, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledReport, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a scheduled report repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, report *models.ScheduledReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *repository) Save(ctx context.Context, report *models.ScheduledReport) error {
	return r.db.WithContext(ctx).Save(report).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ScheduledReport, error) {
	var report models.ScheduledReport
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]models.ScheduledReport, error) {
	q := r.db.WithContext(ctx).Model(&models.ScheduledReport{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []models.ScheduledReport
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDue returns active reports that never ran or whose next run has passed,
// oldest schedule first.
func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledReport, error) {
	var rows []models.ScheduledReport
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("next_run_at IS NULL OR next_run_at <= ?", now).
		Order("next_run_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
