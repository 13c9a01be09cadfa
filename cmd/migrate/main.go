package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/earnings-ledger/pkg/config"
	"github.com/angelmondragon/earnings-ledger/pkg/db"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
	out     io.Writer
}

// offline commands only read or write migration files.
var offline = map[string]func(options) error{
	"list": func(o options) error {
		versions, err := migrate.Versions(o.dir)
		if err != nil {
			return fmt.Errorf("listing migrations: %w", err)
		}
		for _, v := range versions {
			fmt.Fprintln(o.out, v)
		}
		return nil
	},
	"create": func(o options) error {
		if o.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name)
		if err != nil {
			return fmt.Errorf("creating migration: %w", err)
		}
		fmt.Fprintln(o.out, "created migration:", path)
		return nil
	},
	"validate": func(o options) error {
		if err := migrate.ValidateDir(o.dir); err != nil {
			return fmt.Errorf("migration validation: %w", err)
		}
		fmt.Fprintln(o.out, "migration validation passed")
		return nil
	},
}

// online commands run against the configured ledger database.
var online = map[string]func(context.Context, *sql.DB, options) error{
	"up":     goose("up"),
	"down":   goose("down"),
	"redo":   goose("redo"),
	"status": goose("status"),
	"current": func(_ context.Context, sqlDB *sql.DB, o options) error {
		v, err := migrate.CurrentVersion(sqlDB)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		fmt.Fprintln(o.out, v)
		return nil
	},
	"version": func(ctx context.Context, sqlDB *sql.DB, o options) error {
		if o.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, o.dir, o.version)
	},
}

func goose(command string) func(context.Context, *sql.DB, options) error {
	return func(ctx context.Context, sqlDB *sql.DB, o options) error {
		if err := migrate.Run(ctx, sqlDB, o.dir, command); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	}
}

func commandNames() string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	_ = godotenv.Load()

	opts := options{out: os.Stdout}
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: "+commandNames())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if fn, ok := offline[opts.cmd]; ok {
		if err := fn(opts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	fn, ok := online[opts.cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd value %q (want %s)\n", opts.cmd, commandNames())
		os.Exit(2)
	}

	if err := runOnline(opts, fn); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOnline(opts options, fn func(context.Context, *sql.DB, options) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": opts.cmd, "dir": opts.dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "migration starting")
	if err := fn(ctx, sqlDB, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		return err
	}
	logg.Info(ctx, "migration finished")
	return nil
}
