package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	HTTP         HTTPConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Reports      ReportsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EARNINGS_APP_ENV" required:"true"`
	Port         string `envconfig:"EARNINGS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"EARNINGS_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"EARNINGS_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"EARNINGS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EARNINGS_SERVICE_KIND" default:"api"`
}

// HTTPConfig tunes the admin API surface.
type HTTPConfig struct {
	CORSOrigins      []string      `envconfig:"EARNINGS_CORS_ORIGINS" default:"http://localhost:3000"`
	IdempotencyTTL   time.Duration `envconfig:"EARNINGS_IDEMPOTENCY_TTL" default:"24h"`
	ExportRateLimit  int           `envconfig:"EARNINGS_EXPORT_RATE_LIMIT" default:"10"`
	ExportRateWindow time.Duration `envconfig:"EARNINGS_EXPORT_RATE_WINDOW" default:"1m"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	DSN    string `envconfig:"EARNINGS_DB_DSN"`
	Driver string `envconfig:"EARNINGS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EARNINGS_DB_HOST"`
	LegacyPort     int    `envconfig:"EARNINGS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EARNINGS_DB_USER"`
	LegacyPassword string `envconfig:"EARNINGS_DB_PASSWORD"`
	LegacyName     string `envconfig:"EARNINGS_DB_NAME"`
	LegacySSLMode  string `envconfig:"EARNINGS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EARNINGS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EARNINGS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EARNINGS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EARNINGS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQuery time.Duration `envconfig:"EARNINGS_DB_SLOW_QUERY" default:"500ms"`
	TxRetries int           `envconfig:"EARNINGS_DB_TX_RETRIES" default:"2"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"EARNINGS_REDIS_URL"`
	Address      string        `envconfig:"EARNINGS_REDIS_ADDR"`
	Password     string        `envconfig:"EARNINGS_REDIS_PASSWORD"`
	DB           int           `envconfig:"EARNINGS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EARNINGS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EARNINGS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EARNINGS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EARNINGS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EARNINGS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"EARNINGS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"EARNINGS_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig carries the money and batch limits shared by the ledger services.
type LedgerConfig struct {
	MinPayoutAmount    decimal.Decimal `envconfig:"EARNINGS_MIN_PAYOUT_AMOUNT" default:"50.00"`
	DefaultTaxRate     decimal.Decimal `envconfig:"EARNINGS_DEFAULT_TAX_RATE" default:"0"`
	InvoiceDueDays     int             `envconfig:"EARNINGS_INVOICE_DUE_DAYS" default:"30"`
	BulkLimit          int             `envconfig:"EARNINGS_BULK_LIMIT" default:"100"`
	PayoutBulkLimit    int             `envconfig:"EARNINGS_PAYOUT_BULK_LIMIT" default:"50"`
	FeedScanLimit      int             `envconfig:"EARNINGS_FEED_SCAN_LIMIT" default:"10000"`
	ExportRowLimit     int             `envconfig:"EARNINGS_EXPORT_ROW_LIMIT" default:"10000"`
	PayoutDayOfMonth   int             `envconfig:"EARNINGS_PAYOUT_DAY_OF_MONTH" default:"15"`
	InvoiceNumberRetry int             `envconfig:"EARNINGS_INVOICE_NUMBER_RETRY" default:"5"`
}

func (l LedgerConfig) validate() error {
	if l.MinPayoutAmount.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvMinPayoutAmount)
	}
	if l.BulkLimit <= 0 || l.PayoutBulkLimit <= 0 {
		return fmt.Errorf("%s must be positive", EnvBulkLimit)
	}
	if l.FeedScanLimit <= 0 {
		return fmt.Errorf("%s must be positive", EnvFeedScanLimit)
	}
	return nil
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"EARNINGS_CRON_INTERVAL" default:"1m"`
	LockTTL          time.Duration `envconfig:"EARNINGS_CRON_LOCK_TTL" default:"5m"`
	OverdueSweep     bool          `envconfig:"EARNINGS_CRON_OVERDUE_SWEEP" default:"true"`
	TierRefresh      bool          `envconfig:"EARNINGS_CRON_TIER_REFRESH" default:"true"`
	ScheduledReports bool          `envconfig:"EARNINGS_CRON_SCHEDULED_REPORTS" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EARNINGS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"EARNINGS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EARNINGS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AuditTopic string `envconfig:"EARNINGS_PUBSUB_AUDIT_TOPIC"`
}

// Enabled reports whether audit entries should also be published to Pub/Sub.
func (p PubSubConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(p.AuditTopic) != "" && strings.TrimSpace(gcp.ProjectID) != ""
}

// ReportsConfig controls scheduled report runs and where rendered files go.
// Reports are only logged when ArchiveBucket is empty.
type ReportsConfig struct {
	ArchiveBucket string `envconfig:"EARNINGS_REPORTS_BUCKET"`
	ArchivePrefix string `envconfig:"EARNINGS_REPORTS_PREFIX" default:"reports"`
	BatchSize     int    `envconfig:"EARNINGS_REPORTS_BATCH_SIZE" default:"50"`
	LookbackDays  int    `envconfig:"EARNINGS_REPORTS_LOOKBACK_DAYS" default:"30"`
}

// ArchiveEnabled reports whether rendered reports are uploaded to GCS.
func (r ReportsConfig) ArchiveEnabled() bool {
	return strings.TrimSpace(r.ArchiveBucket) != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:earnings.db?_foreign_keys=on"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
