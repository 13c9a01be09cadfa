package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/earnings-ledger/pkg/config"
	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

// Strategy names how a binary brings the ledger schema up at boot.
type Strategy string

const (
	StrategySkip   Strategy = "skip"
	StrategyModels Strategy = "models"
	StrategyGoose  Strategy = "goose"
)

// StrategyFor picks the boot migration strategy. Only dev environments with
// EARNINGS_AUTO_MIGRATE migrate at boot; SQLite uses the gorm models because
// the SQL files target Postgres.
func StrategyFor(cfg *config.Config) Strategy {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return StrategySkip
	}
	if cfg.DB.IsSQLite() {
		return StrategyModels
	}
	return StrategyGoose
}

// MaybeRunDev applies the boot migration strategy for cfg.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	strategy := StrategyFor(cfg)
	if strategy == StrategySkip {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"strategy": string(strategy), "driver": cfg.DB.Driver})

	switch strategy {
	case StrategyModels:
		logg.Info(ctx, "creating ledger tables from models")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto migrating ledger models: %w", err)
		}
		return nil
	default:
		sqlDB, err := client.DB().DB()
		if err != nil {
			return fmt.Errorf("extracting sql.DB: %w", err)
		}
		logg.Info(logg.WithField(ctx, "dir", DefaultDir), "applying ledger migrations")
		if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		version, err := CurrentVersion(sqlDB)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		logg.Info(logg.WithField(ctx, "version", version), "ledger schema up to date")
		return nil
	}
}
