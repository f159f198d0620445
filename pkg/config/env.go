package config

// EnvPrefix is empty because every tag already carries the DROPSHIP_ namespace.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "DROPSHIP_APP_ENV"
	EnvPort     = "DROPSHIP_APP_PORT"
	EnvLogLevel = "DROPSHIP_LOG_LEVEL"

	EnvDBDSN       = "DROPSHIP_DB_DSN"
	EnvDBHost      = "DROPSHIP_DB_HOST"
	EnvDBPort      = "DROPSHIP_DB_PORT"
	EnvDBUser      = "DROPSHIP_DB_USER"
	EnvDBPassword  = "DROPSHIP_DB_PASSWORD"
	EnvDBName      = "DROPSHIP_DB_NAME"
	EnvUseSQLite   = "DROPSHIP_USE_SQLITE"
	EnvAutoMigrate = "DROPSHIP_AUTO_MIGRATE"

	EnvRedisURL  = "DROPSHIP_REDIS_URL"
	EnvJWTSecret = "DROPSHIP_JWT_SECRET"
	EnvJWTIssuer = "DROPSHIP_JWT_ISSUER"

	EnvTrackerInterval    = "DROPSHIP_TRACKER_INTERVAL"
	EnvTrackerConcurrency = "DROPSHIP_TRACKER_CONCURRENCY"

	EnvPolicyLowStock  = "DROPSHIP_POLICY_LOW_STOCK_THRESHOLD"
	EnvPolicyPriceDrop = "DROPSHIP_POLICY_PRICE_DROP_THRESHOLD"
	EnvPolicyMinMargin = "DROPSHIP_POLICY_MIN_MARGIN"

	EnvQueueStream   = "DROPSHIP_QUEUE_STREAM"
	EnvQueueConsumer = "DROPSHIP_QUEUE_CONSUMER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
