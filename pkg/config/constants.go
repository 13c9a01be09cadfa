package config

import "github.com/angelmondragon/earnings-ledger/pkg/env"

const (
	EnvPrefix = env.Prefix

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "EARNINGS_APP_ENV"
	EnvPort     = "EARNINGS_APP_PORT"
	EnvLogLevel = "EARNINGS_LOG_LEVEL"

	EnvDBDSN  = "EARNINGS_DB_DSN"
	EnvDBHost = "EARNINGS_DB_HOST"
	EnvDBUser = "EARNINGS_DB_USER"
	EnvDBName = "EARNINGS_DB_NAME"

	EnvRedisURL = "EARNINGS_REDIS_URL"

	EnvUseSQLite = "EARNINGS_USE_SQLITE"

	EnvMinPayoutAmount = "EARNINGS_MIN_PAYOUT_AMOUNT"
	EnvBulkLimit       = "EARNINGS_BULK_LIMIT"
	EnvFeedScanLimit   = "EARNINGS_FEED_SCAN_LIMIT"

	EnvGCPProjectID     = "EARNINGS_GCP_PROJECT_ID"
	EnvPubSubAuditTopic = "EARNINGS_PUBSUB_AUDIT_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
