package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	API          APIConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Graph        GraphConfig
	Scheduler    SchedulerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Scheduler.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PARTSRUNNER_APP_ENV" required:"true"`
	Port         string `envconfig:"PARTSRUNNER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PARTSRUNNER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PARTSRUNNER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PARTSRUNNER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PARTSRUNNER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PARTSRUNNER_DB_DSN"`
	Driver string `envconfig:"PARTSRUNNER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PARTSRUNNER_DB_HOST"`
	LegacyPort     int    `envconfig:"PARTSRUNNER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PARTSRUNNER_DB_USER"`
	LegacyPassword string `envconfig:"PARTSRUNNER_DB_PASSWORD"`
	LegacyName     string `envconfig:"PARTSRUNNER_DB_NAME"`
	LegacySSLMode  string `envconfig:"PARTSRUNNER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PARTSRUNNER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PARTSRUNNER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PARTSRUNNER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PARTSRUNNER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements at or above it; zero turns it off.
	SlowQueryThreshold time.Duration `envconfig:"PARTSRUNNER_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PARTSRUNNER_REDIS_URL"`
	Address      string        `envconfig:"PARTSRUNNER_REDIS_ADDR"`
	Password     string        `envconfig:"PARTSRUNNER_REDIS_PASSWORD"`
	DB           int           `envconfig:"PARTSRUNNER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PARTSRUNNER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PARTSRUNNER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PARTSRUNNER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PARTSRUNNER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PARTSRUNNER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// APIConfig tunes the dispatch HTTP surface.
type APIConfig struct {
	CORSOrigins      []string      `envconfig:"PARTSRUNNER_API_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow  time.Duration `envconfig:"PARTSRUNNER_API_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerUser int           `envconfig:"PARTSRUNNER_API_RATE_LIMIT_PER_USER" default:"120"`
	IdempotencyTTL   time.Duration `envconfig:"PARTSRUNNER_API_IDEMPOTENCY_TTL" default:"24h"`
}

// JWTConfig is only used to read caller identity; tokens are issued elsewhere.
type JWTConfig struct {
	Secret            string `envconfig:"PARTSRUNNER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PARTSRUNNER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PARTSRUNNER_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PARTSRUNNER_AUTO_MIGRATE" default:"false"`
}

type GraphConfig struct {
	RebuildLockTTL     time.Duration `envconfig:"PARTSRUNNER_GRAPH_REBUILD_LOCK_TTL" default:"10m"`
	InsertBatchSize    int           `envconfig:"PARTSRUNNER_GRAPH_INSERT_BATCH_SIZE" default:"500"`
	QueuePollTimeout   time.Duration `envconfig:"PARTSRUNNER_GRAPH_QUEUE_POLL_TIMEOUT" default:"5s"`
	RebuildOnCronCycle bool          `envconfig:"PARTSRUNNER_GRAPH_REBUILD_ON_CRON" default:"true"`
	// KeepBuilds bounds route_graph_builds history kept by the retention job.
	KeepBuilds         int           `envconfig:"PARTSRUNNER_GRAPH_KEEP_BUILDS" default:"30"`
}

type SchedulerConfig struct {
	Timezone     string        `envconfig:"PARTSRUNNER_SCHEDULER_TIMEZONE" default:"America/Chicago"`
	CronInterval time.Duration `envconfig:"PARTSRUNNER_SCHEDULER_CRON_INTERVAL" default:"1h"`
	DaysAhead    int           `envconfig:"PARTSRUNNER_SCHEDULER_DAYS_AHEAD" default:"1"`
}

// Location resolves the timezone used to decide what "today" is for dispatch.
func (s SchedulerConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading scheduler timezone %q: %w", name, err)
	}
	return loc, nil
}

type GCPConfig struct {
	ProjectID string `envconfig:"PARTSRUNNER_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DispatchTopic string `envconfig:"PARTSRUNNER_PUBSUB_DISPATCH_TOPIC" default:"pr-dispatch-events"`
	GraphTopic    string `envconfig:"PARTSRUNNER_PUBSUB_GRAPH_TOPIC" default:"pr-graph-events"`
	// OrderByAggregate publishes with an ordering key per run/request so
	// subscribers see one aggregate's events in commit order.
	OrderByAggregate bool `envconfig:"PARTSRUNNER_PUBSUB_ORDER_BY_AGGREGATE" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PARTSRUNNER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PARTSRUNNER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PARTSRUNNER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PARTSRUNNER_OUTBOX_RETENTION_DAYS" default:"14"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
