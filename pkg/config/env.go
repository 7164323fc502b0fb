package config

// EnvPrefix is handed to envconfig; every field carries an explicit tag so the
// prefix only matters for fields without one.
const EnvPrefix = "BUCKETSHARE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "BUCKETSHARE_APP_ENV"
	EnvPort     = "BUCKETSHARE_APP_PORT"
	EnvLogLevel = "BUCKETSHARE_LOG_LEVEL"

	EnvDBDSN  = "BUCKETSHARE_DB_DSN"
	EnvDBHost = "BUCKETSHARE_DB_HOST"
	EnvDBUser = "BUCKETSHARE_DB_USER"
	EnvDBName = "BUCKETSHARE_DB_NAME"

	EnvRedisURL = "BUCKETSHARE_REDIS_URL"

	EnvJWTSecret = "BUCKETSHARE_JWT_SECRET"
	EnvJWTIssuer = "BUCKETSHARE_JWT_ISSUER"

	EnvUseSQLite = "BUCKETSHARE_USE_SQLITE"
	EnvLogFormat = "BUCKETSHARE_LOG_FORMAT"

	EnvGCPProjectID           = "BUCKETSHARE_GCP_PROJECT_ID"
	EnvPubSubNotificationTopic = "BUCKETSHARE_PUBSUB_NOTIFICATION_TOPIC"

	EnvStripeAPIKey = "BUCKETSHARE_STRIPE_API_KEY"
	EnvStripeSecret = "BUCKETSHARE_STRIPE_SECRET"

	EnvCronInterval = "BUCKETSHARE_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
