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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Tracker      TrackerConfig
	Policy       PolicyConfig
	Queue        QueueConfig
	Outbox       OutboxConfig
	Marketplaces MarketplacesConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DROPSHIP_APP_ENV" required:"true"`
	Port         string `envconfig:"DROPSHIP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DROPSHIP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DROPSHIP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"DROPSHIP_SERVICE_KIND" default:"api"`
	MetricsPort string `envconfig:"DROPSHIP_METRICS_PORT"`
}

type DBConfig struct {
	DSN    string `envconfig:"DROPSHIP_DB_DSN"`
	Driver string `envconfig:"DROPSHIP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DROPSHIP_DB_HOST"`
	LegacyPort     int    `envconfig:"DROPSHIP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DROPSHIP_DB_USER"`
	LegacyPassword string `envconfig:"DROPSHIP_DB_PASSWORD"`
	LegacyName     string `envconfig:"DROPSHIP_DB_NAME"`
	LegacySSLMode  string `envconfig:"DROPSHIP_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"DROPSHIP_SQLITE_PATH" default:"dropship.db"`

	MaxOpenConns    int           `envconfig:"DROPSHIP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DROPSHIP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DROPSHIP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DROPSHIP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DROPSHIP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DROPSHIP_REDIS_ADDR"`
	Password     string        `envconfig:"DROPSHIP_REDIS_PASSWORD"`
	DB           int           `envconfig:"DROPSHIP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DROPSHIP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DROPSHIP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DROPSHIP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DROPSHIP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DROPSHIP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig carries the verification settings for bearer tokens issued by the auth service.
type JWTConfig struct {
	Secret            string `envconfig:"DROPSHIP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DROPSHIP_JWT_ISSUER" default:"dropship-central"`
	ExpirationMinutes int    `envconfig:"DROPSHIP_JWT_EXPIRATION_MINUTES" default:"60"`
}

type CORSConfig struct {
	Origins []string `envconfig:"DROPSHIP_CORS_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DROPSHIP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DROPSHIP_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	JobIdempotencyTTL time.Duration `envconfig:"DROPSHIP_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

// TrackerConfig drives the supplier tracking loop.
type TrackerConfig struct {
	Interval     time.Duration `envconfig:"DROPSHIP_TRACKER_INTERVAL" default:"1h"`
	Concurrency  int           `envconfig:"DROPSHIP_TRACKER_CONCURRENCY" default:"10"`
	FetchTimeout time.Duration `envconfig:"DROPSHIP_TRACKER_FETCH_TIMEOUT" default:"30s"`
	LockTTL      time.Duration `envconfig:"DROPSHIP_TRACKER_LOCK_TTL" default:"55m"`
}

// PolicyConfig holds the policy thresholds as decimal strings so they never pass through floats.
type PolicyConfig struct {
	LowStockThreshold  int    `envconfig:"DROPSHIP_POLICY_LOW_STOCK_THRESHOLD" default:"5"`
	PriceDropThreshold string `envconfig:"DROPSHIP_POLICY_PRICE_DROP_THRESHOLD" default:"0.05"`
	MinMargin          string `envconfig:"DROPSHIP_POLICY_MIN_MARGIN" default:"0.15"`
}

// PriceDrop returns the configured price drop threshold as a fraction.
func (p PolicyConfig) PriceDrop() decimal.Decimal {
	return decimal.RequireFromString(p.PriceDropThreshold)
}

// Margin returns the configured minimum margin as a fraction.
func (p PolicyConfig) Margin() decimal.Decimal {
	return decimal.RequireFromString(p.MinMargin)
}

func (p PolicyConfig) validate() error {
	if p.LowStockThreshold < 0 {
		return fmt.Errorf("%s must be non-negative", EnvPolicyLowStock)
	}
	if _, err := decimal.NewFromString(p.PriceDropThreshold); err != nil {
		return fmt.Errorf("parsing %s: %w", EnvPolicyPriceDrop, err)
	}
	if _, err := decimal.NewFromString(p.MinMargin); err != nil {
		return fmt.Errorf("parsing %s: %w", EnvPolicyMinMargin, err)
	}
	return nil
}

type QueueConfig struct {
	Stream       string        `envconfig:"DROPSHIP_QUEUE_STREAM" default:"dropship:jobs"`
	Group        string        `envconfig:"DROPSHIP_QUEUE_GROUP" default:"workers"`
	Consumer     string        `envconfig:"DROPSHIP_QUEUE_CONSUMER"`
	BatchSize    int           `envconfig:"DROPSHIP_QUEUE_BATCH_SIZE" default:"10"`
	BlockTimeout time.Duration `envconfig:"DROPSHIP_QUEUE_BLOCK_TIMEOUT" default:"5s"`
	ClaimIdle    time.Duration `envconfig:"DROPSHIP_QUEUE_CLAIM_IDLE" default:"2m"`
	MaxAttempts  int           `envconfig:"DROPSHIP_QUEUE_MAX_ATTEMPTS" default:"5"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DROPSHIP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DROPSHIP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DROPSHIP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type MarketplacesConfig struct {
	EbayBaseURL string        `envconfig:"DROPSHIP_EBAY_BASE_URL" default:"https://api.ebay.com"`
	Sandbox     bool          `envconfig:"DROPSHIP_MARKETPLACE_SANDBOX" default:"true"`
	Timeout     time.Duration `envconfig:"DROPSHIP_MARKETPLACE_TIMEOUT" default:"15s"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
