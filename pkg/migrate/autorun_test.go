package migrate_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/earnings-ledger/pkg/config"
	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/migrate"
)

func TestMaybeRunDevMigratesSQLiteFromModels(t *testing.T) {
	conn := dbtest.Open(t)
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		DB:           config.DBConfig{Driver: config.DriverSQLite},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	require.NoError(t, migrate.MaybeRunDev(context.Background(), cfg, logg, db.NewFromGorm(conn)))

	for _, table := range []string{"resellers", "commissions", "invoices", "payouts", "audit_logs", "scheduled_reports"} {
		require.True(t, conn.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	conn := dbtest.Open(t)
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvProd},
		DB:           config.DBConfig{Driver: config.DriverSQLite},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	require.NoError(t, migrate.MaybeRunDev(context.Background(), cfg, logg, db.NewFromGorm(conn)))
	require.False(t, conn.Migrator().HasTable("resellers"))
}

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		want migrate.Strategy
	}{
		{"nil config", nil, migrate.StrategySkip},
		{"flag off", &config.Config{App: config.AppConfig{Env: config.AppEnvDev}}, migrate.StrategySkip},
		{"prod", &config.Config{App: config.AppConfig{Env: config.AppEnvProd}, FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true}}, migrate.StrategySkip},
		{"dev sqlite", &config.Config{
			App:          config.AppConfig{Env: config.AppEnvDev},
			DB:           config.DBConfig{Driver: config.DriverSQLite},
			FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
		}, migrate.StrategyModels},
		{"dev postgres", &config.Config{
			App:          config.AppConfig{Env: config.AppEnvDev},
			DB:           config.DBConfig{Driver: config.DriverPostgres},
			FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
		}, migrate.StrategyGoose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, migrate.StrategyFor(tt.cfg))
		})
	}
}
