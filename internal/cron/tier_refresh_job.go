package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/metrics"
)

type tierRefresher interface {
	RefreshAllTiers(ctx context.Context) (int, error)
}

// TierRefreshJobParams configure the reseller tier refresh.
type TierRefreshJobParams struct {
	Logger    *logger.Logger
	Resellers tierRefresher
	Metrics   *metrics.CronJobMetrics
}

// NewTierRefreshJob builds the job that re-evaluates reseller tiers from
// lifetime earnings.
func NewTierRefreshJob(params TierRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Resellers == nil {
		return nil, fmt.Errorf("tier refresher required")
	}
	return &tierRefreshJob{
		logg:      params.Logger,
		resellers: params.Resellers,
		metrics:   params.Metrics,
	}, nil
}

type tierRefreshJob struct {
	logg      *logger.Logger
	resellers tierRefresher
	metrics   *metrics.CronJobMetrics
}

func (j *tierRefreshJob) Name() string { return "reseller-tier-refresh" }

func (j *tierRefreshJob) Run(ctx context.Context) error {
	changed, err := j.resellers.RefreshAllTiers(ctx)
	if err != nil {
		return fmt.Errorf("refresh reseller tiers: %w", err)
	}
	j.metrics.AddRows(j.Name(), changed)
	logCtx := j.logg.WithFields(ctx, map[string]any{"changed": changed})
	j.logg.Info(logCtx, "reseller tier refresh complete")
	return nil
}
