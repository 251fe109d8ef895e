package config

// EnvPrefix is only used by envconfig for fields without an explicit tag.
const EnvPrefix = "PARTSRUNNER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "PARTSRUNNER_APP_ENV"
	EnvPort         = "PARTSRUNNER_APP_PORT"
	EnvDBDSN        = "PARTSRUNNER_DB_DSN"
	EnvDBHost       = "PARTSRUNNER_DB_HOST"
	EnvDBUser       = "PARTSRUNNER_DB_USER"
	EnvDBName       = "PARTSRUNNER_DB_NAME"
	EnvDBPassword   = "PARTSRUNNER_DB_PASSWORD"
	EnvRedisURL     = "PARTSRUNNER_REDIS_URL"
	EnvJWTSecret    = "PARTSRUNNER_JWT_SECRET"
	EnvJWTIssuer    = "PARTSRUNNER_JWT_ISSUER"
	EnvTimezone     = "PARTSRUNNER_SCHEDULER_TIMEZONE"
	EnvDaysAhead    = "PARTSRUNNER_SCHEDULER_DAYS_AHEAD"
	EnvGraphBatch   = "PARTSRUNNER_GRAPH_INSERT_BATCH_SIZE"
	EnvGCPProjectID = "PARTSRUNNER_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
