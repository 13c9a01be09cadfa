package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/earnings-ledger/internal/bootstrap"
	"github.com/angelmondragon/earnings-ledger/internal/cron"
	"github.com/angelmondragon/earnings-ledger/internal/reports"
	"github.com/angelmondragon/earnings-ledger/pkg/config"
	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/instance"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/metrics"
	"github.com/angelmondragon/earnings-ledger/pkg/migrate"
	"github.com/angelmondragon/earnings-ledger/pkg/redis"
	"github.com/angelmondragon/earnings-ledger/pkg/storage/gcs"
)

func main() {
	once := flag.Bool("once", false, "run one cycle and exit")
	only := flag.String("jobs", "", "comma separated job names to run (default: every enabled job)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var archive reports.Archive
	if cfg.Reports.ArchiveEnabled() {
		gcsClient, err := gcs.NewClient(context.Background(), cfg.Reports, cfg.GCP, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap report archive", err)
			os.Exit(1)
		}
		archive = gcsClient
	}

	svc, err := bootstrap.NewServices(bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Registerer: prometheus.DefaultRegisterer,
		Archive:    archive,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire ledger services", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg.Cron, logg, svc, metricsCollector)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}
	if *only != "" {
		registry, err = registry.Only(strings.Split(*only, ",")...)
		if err != nil {
			logg.Error(context.Background(), "invalid -jobs selection", err)
			os.Exit(1)
		}
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"jobs":        registry.Names(),
	})
	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg config.CronConfig, logg *logger.Logger, svc *bootstrap.Services, m *metrics.CronJobMetrics) (*cron.Registry, error) {
	registry := cron.NewRegistry()
	if cfg.OverdueSweep {
		job, err := cron.NewInvoiceOverdueJob(cron.InvoiceOverdueJobParams{Logger: logg, Invoices: svc.Invoices, Metrics: m})
		if err != nil {
			return nil, err
		}
		registry.Register(job)
	}
	if cfg.TierRefresh {
		job, err := cron.NewTierRefreshJob(cron.TierRefreshJobParams{Logger: logg, Resellers: svc.Resellers, Metrics: m})
		if err != nil {
			return nil, err
		}
		registry.Register(job)
	}
	if cfg.ScheduledReports {
		job, err := cron.NewScheduledReportsJob(cron.ScheduledReportsJobParams{Logger: logg, Reports: svc.Reports, Metrics: m})
		if err != nil {
			return nil, err
		}
		registry.Register(job)
	}
	return registry, nil
}
