package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/earnings-ledger/internal/audit"
	"github.com/angelmondragon/earnings-ledger/internal/commissions"
	"github.com/angelmondragon/earnings-ledger/internal/invoices"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/internal/payouts"
	"github.com/angelmondragon/earnings-ledger/internal/reports"
	"github.com/angelmondragon/earnings-ledger/internal/resellers"
	"github.com/angelmondragon/earnings-ledger/internal/transactions"
	"github.com/angelmondragon/earnings-ledger/pkg/config"
	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/metrics"
)

// Params are the shared handles every binary builds the ledger services from.
// Publisher and Archive are optional.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Registerer prometheus.Registerer
	Publisher  audit.Publisher
	Archive    reports.Archive
	Clock      ledger.Clock
}

// Services holds the wired ledger services.
type Services struct {
	Audit        *audit.Service
	Resellers    *resellers.Service
	Commissions  *commissions.Service
	Invoices     *invoices.Service
	Payouts      *payouts.Service
	Transactions *transactions.Service
	Reports      *reports.Service
}

// NewServices wires every ledger service against one database client.
func NewServices(p Params) (*Services, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil {
		return nil, fmt.Errorf("config, logger and db are required")
	}
	reg := p.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	cfg := p.Config
	conn := p.DB.DB()
	ledgerMetrics := metrics.NewLedgerMetrics(reg)

	auditSvc, err := audit.NewService(audit.ServiceParams{
		Repo:      audit.NewRepository(conn),
		Publisher: p.Publisher,
		Logger:    p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("audit service: %w", err)
	}

	resellerRepo := resellers.NewRepository(conn)
	commissionRepo := commissions.NewRepository(conn)

	resellerSvc, err := resellers.NewService(resellers.ServiceParams{
		Repo:   resellerRepo,
		Tx:     p.DB,
		Audit:  auditSvc,
		Logger: p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("reseller service: %w", err)
	}

	commissionSvc, err := commissions.NewService(commissions.ServiceParams{
		Repo:      commissionRepo,
		Resellers: resellerRepo,
		Tx:        p.DB,
		Audit:     auditSvc,
		Metrics:   ledgerMetrics,
		Logger:    p.Logger,
		Clock:     p.Clock,
		BulkLimit: cfg.Ledger.BulkLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("commission service: %w", err)
	}

	invoiceSvc, err := invoices.NewService(invoices.ServiceParams{
		Repo:           invoices.NewRepository(conn),
		Commissions:    commissionRepo,
		Resellers:      resellerRepo,
		Tx:             p.DB,
		Audit:          auditSvc,
		Metrics:        ledgerMetrics,
		Logger:         p.Logger,
		Clock:          p.Clock,
		DefaultTaxRate: cfg.Ledger.DefaultTaxRate,
		DueDays:        cfg.Ledger.InvoiceDueDays,
		NumberRetries:  cfg.Ledger.InvoiceNumberRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("invoice service: %w", err)
	}

	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:        payouts.NewRepository(conn),
		Commissions: commissionRepo,
		Resellers:   resellerRepo,
		Tx:          p.DB,
		Audit:       auditSvc,
		Metrics:     ledgerMetrics,
		Logger:      p.Logger,
		Clock:       p.Clock,
		MinPayout:   cfg.Ledger.MinPayoutAmount,
		BulkLimit:   cfg.Ledger.PayoutBulkLimit,
		PayoutDay:   cfg.Ledger.PayoutDayOfMonth,
	})
	if err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}

	feedSvc, err := transactions.NewService(transactions.NewRepository(conn), p.Logger, cfg.Ledger.FeedScanLimit)
	if err != nil {
		return nil, fmt.Errorf("transaction feed: %w", err)
	}

	reportSvc, err := reports.NewService(reports.ServiceParams{
		Repo:         reports.NewRepository(conn),
		Commissions:  commissionSvc,
		Invoices:     invoiceSvc,
		Payouts:      payoutSvc,
		Feed:         feedSvc,
		Archive:      p.Archive,
		Audit:        auditSvc,
		Logger:       p.Logger,
		Clock:        p.Clock,
		BatchSize:    cfg.Reports.BatchSize,
		LookbackDays: cfg.Reports.LookbackDays,
		RowLimit:     cfg.Ledger.ExportRowLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("report service: %w", err)
	}

	return &Services{
		Audit:        auditSvc,
		Resellers:    resellerSvc,
		Commissions:  commissionSvc,
		Invoices:     invoiceSvc,
		Payouts:      payoutSvc,
		Transactions: feedSvc,
		Reports:      reportSvc,
	}, nil
}
