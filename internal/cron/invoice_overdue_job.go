package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/metrics"
)

// overdueSweeper moves sent invoices past their due date to overdue.
type overdueSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// InvoiceOverdueJobParams configure the overdue sweep.
type InvoiceOverdueJobParams struct {
	Logger   *logger.Logger
	Invoices overdueSweeper
	Metrics  *metrics.CronJobMetrics
}

// NewInvoiceOverdueJob builds the job that flags unpaid invoices as overdue.
func NewInvoiceOverdueJob(params InvoiceOverdueJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice sweeper required")
	}
	return &invoiceOverdueJob{
		logg:     params.Logger,
		invoices: params.Invoices,
		metrics:  params.Metrics,
	}, nil
}

type invoiceOverdueJob struct {
	logg     *logger.Logger
	invoices overdueSweeper
	metrics  *metrics.CronJobMetrics
}

func (j *invoiceOverdueJob) Name() string { return "invoice-overdue-sweep" }

func (j *invoiceOverdueJob) Run(ctx context.Context) error {
	count, err := j.invoices.SweepOverdue(ctx)
	if err != nil {
		return fmt.Errorf("sweep overdue invoices: %w", err)
	}
	j.metrics.AddRows(j.Name(), count)
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "invoice overdue sweep complete")
	return nil
}
