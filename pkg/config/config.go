package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Webhooks     WebhookConfig
	Cron         CronConfig
	Ledger       LedgerConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects combinations envconfig cannot express on its own.
func (c *Config) validate() error {
	switch {
	case c.App.IsProd() && c.FeatureFlags.UseSQLite:
		return errors.New("sqlite is not allowed in production")
	case !strings.EqualFold(c.App.LogFormat, "json") && !strings.EqualFold(c.App.LogFormat, "console"):
		return fmt.Errorf("log format must be json or console, got %q", c.App.LogFormat)
	case c.Cron.Interval <= 0 || c.Cron.LockTTL <= 0:
		return errors.New("cron interval and lock ttl must be positive")
	case c.Ledger.MaxMutationAttempts < 1:
		return errors.New("ledger max mutation attempts must be at least 1")
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"BUCKETSHARE_APP_ENV" required:"true"`
	Port         string `envconfig:"BUCKETSHARE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BUCKETSHARE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BUCKETSHARE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"BUCKETSHARE_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"BUCKETSHARE_CORS_ALLOWED_ORIGINS"`
	ReadTimeout        time.Duration `envconfig:"BUCKETSHARE_HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout       time.Duration `envconfig:"BUCKETSHARE_HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout        time.Duration `envconfig:"BUCKETSHARE_HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout    time.Duration `envconfig:"BUCKETSHARE_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type ServiceConfig struct {
	Kind string `envconfig:"BUCKETSHARE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BUCKETSHARE_DB_DSN"`
	Driver string `envconfig:"BUCKETSHARE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BUCKETSHARE_DB_HOST"`
	LegacyPort     int    `envconfig:"BUCKETSHARE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BUCKETSHARE_DB_USER"`
	LegacyPassword string `envconfig:"BUCKETSHARE_DB_PASSWORD"`
	LegacyName     string `envconfig:"BUCKETSHARE_DB_NAME"`
	LegacySSLMode  string `envconfig:"BUCKETSHARE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BUCKETSHARE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BUCKETSHARE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BUCKETSHARE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BUCKETSHARE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BUCKETSHARE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BUCKETSHARE_REDIS_ADDR"`
	Password     string        `envconfig:"BUCKETSHARE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BUCKETSHARE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BUCKETSHARE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BUCKETSHARE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BUCKETSHARE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BUCKETSHARE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BUCKETSHARE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes how identity tokens minted by the identity provider are verified.
type JWTConfig struct {
	Secret   string `envconfig:"BUCKETSHARE_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"BUCKETSHARE_JWT_ISSUER" required:"true"`
	Audience string `envconfig:"BUCKETSHARE_JWT_AUDIENCE"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BUCKETSHARE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BUCKETSHARE_AUTO_MIGRATE" default:"false"`
	AllowACH    bool `envconfig:"BUCKETSHARE_FEATURE_ALLOW_ACH" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BUCKETSHARE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BUCKETSHARE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BUCKETSHARE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"BUCKETSHARE_PUBSUB_NOTIFICATION_TOPIC" default:"bucketshare-notifications"`
}

// NotificationsEnabled reports whether notifications should be published to Pub/Sub.
func (c Config) NotificationsEnabled() bool {
	return strings.TrimSpace(c.GCP.ProjectID) != "" && strings.TrimSpace(c.PubSub.NotificationTopic) != ""
}

type StripeConfig struct {
	APIKey        string `envconfig:"BUCKETSHARE_STRIPE_API_KEY"`
	Secret        string `envconfig:"BUCKETSHARE_STRIPE_SECRET"`
	Env           string `envconfig:"BUCKETSHARE_STRIPE_ENV" default:"test"`
	ConnectReturn string `envconfig:"BUCKETSHARE_STRIPE_CONNECT_RETURN_URL" default:"https://app.bucketshare.io/payouts/done"`
	ConnectReauth string `envconfig:"BUCKETSHARE_STRIPE_CONNECT_REFRESH_URL" default:"https://app.bucketshare.io/payouts/retry"`
	PlusPriceID   string `envconfig:"BUCKETSHARE_STRIPE_PLUS_PRICE_ID"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"BUCKETSHARE_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"BUCKETSHARE_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"BUCKETSHARE_CRON_LOCK_TTL" default:"30m"`

	DeadLetterRetentionDays int `envconfig:"BUCKETSHARE_CRON_DEAD_LETTER_RETENTION_DAYS" default:"90"`
	PurgeBatchSize          int `envconfig:"BUCKETSHARE_CRON_PURGE_BATCH_SIZE" default:"500"`
}

type LedgerConfig struct {
	MaxMutationAttempts int `envconfig:"BUCKETSHARE_LEDGER_MAX_MUTATION_ATTEMPTS" default:"5"`
}

// RateLimitConfig bounds the money-moving endpoints per client IP and per user.
// A zero limit disables that dimension.
type RateLimitConfig struct {
	MoneyWindow    time.Duration `envconfig:"BUCKETSHARE_RATE_LIMIT_MONEY_WINDOW" default:"1m"`
	MoneyIPLimit   int           `envconfig:"BUCKETSHARE_RATE_LIMIT_MONEY_IP_LIMIT" default:"60"`
	MoneyUserLimit int           `envconfig:"BUCKETSHARE_RATE_LIMIT_MONEY_USER_LIMIT" default:"20"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:bucketshare.db?cache=shared&_foreign_keys=on"
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
