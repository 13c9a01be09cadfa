package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/earnings-ledger/internal/reports"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/metrics"
)

type dueReportRunner interface {
	RunDue(ctx context.Context) (reports.RunResult, error)
}

// ScheduledReportsJobParams configure the scheduled report runner.
type ScheduledReportsJobParams struct {
	Logger  *logger.Logger
	Reports dueReportRunner
	Metrics *metrics.CronJobMetrics
}

// NewScheduledReportsJob builds the job that renders reports whose next run
// has arrived.
func NewScheduledReportsJob(params ScheduledReportsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reports == nil {
		return nil, fmt.Errorf("report runner required")
	}
	return &scheduledReportsJob{
		logg:    params.Logger,
		reports: params.Reports,
		metrics: params.Metrics,
	}, nil
}

type scheduledReportsJob struct {
	logg    *logger.Logger
	reports dueReportRunner
	metrics *metrics.CronJobMetrics
}

func (j *scheduledReportsJob) Name() string { return "scheduled-reports" }

// Run always logs the counts; failed reports surface as the returned error.
func (j *scheduledReportsJob) Run(ctx context.Context) error {
	result, err := j.reports.RunDue(ctx)
	j.metrics.AddRows(j.Name(), result.Processed)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed": result.Processed,
		"failed":    result.Failed,
	})
	if err != nil {
		j.logg.Warn(logCtx, "scheduled reports finished with failures")
		return fmt.Errorf("run scheduled reports: %w", err)
	}
	j.logg.Info(logCtx, "scheduled reports complete")
	return nil
}
