// Package config loads trackersyncd's configuration from the environment.
package config

import "time"

// Config is the full set of environment-driven settings for trackersyncd.
// Field tags follow ectoenv's env/env-default convention.
type Config struct {
	AppName  string `env:"APP_NAME" env-default:"trackersyncd"`
	Port     int    `env:"PORT" env-default:"3000"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	// PrettyLogs switches the logger to a human-readable encoder for local dev.
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Platform A (enterprise tracker, Redmine-shaped)
	PlatformABaseURL        string `env:"PLATFORM_A_BASE_URL" env-default:""`
	PlatformAAPIKey         string `env:"PLATFORM_A_API_KEY" env-default:""`
	PlatformAPublicURL      string `env:"PLATFORM_A_PUBLIC_URL" env-default:""`
	PlatformACustomFieldName string `env:"PLATFORM_A_CUSTOM_FIELD_NAME" env-default:"Gitlab Repo"`

	// Platform B (source-forge tracker, GitLab-shaped)
	PlatformBBaseURL   string `env:"PLATFORM_B_BASE_URL" env-default:""`
	PlatformBToken     string `env:"PLATFORM_B_TOKEN" env-default:""`
	PlatformBPublicURL string `env:"PLATFORM_B_PUBLIC_URL" env-default:""`

	// Per-platform rate limits, enforced client-side ahead of each outbound
	// request via internal/ratelimit so this process never trips the
	// platform's own server-side throttling.
	PlatformARateLimitRequests int `env:"PLATFORM_A_RATE_LIMIT_REQUESTS" env-default:"60"`
	PlatformARateLimitWindowSecs int `env:"PLATFORM_A_RATE_LIMIT_WINDOW_SECONDS" env-default:"60"`
	PlatformBRateLimitRequests int `env:"PLATFORM_B_RATE_LIMIT_REQUESTS" env-default:"600"`
	PlatformBRateLimitWindowSecs int `env:"PLATFORM_B_RATE_LIMIT_WINDOW_SECONDS" env-default:"60"`

	// CategoryKeys is the ordered vocabulary used to filter listings and pair
	// with platform A's tracker names.
	CategoryKeys []string `env:"CATEGORY_KEYS" env-default:"Feature,Bug,Task"`

	// Polling
	PollingEnabled       bool `env:"POLLING_ENABLED" env-default:"true"`
	PollingIntervalSecs  int  `env:"POLLING_INTERVAL_SECONDS" env-default:"60"`
	PollingJitterSecs    int  `env:"POLLING_JITTER_SECONDS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database connection string (storage.connectionString)
	DatabaseConnectionString string `env:"DB_CONNECTION_STRING" env-default:""`
	// Reconnect Retry Count
	DatabaseReconnectRetryCount int `env:"DB_RECONNECT_RETRY_COUNT" env-default:"3"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"migrations"`
	// Database Migration Version (0 = latest)
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (poll-driver overlap lock, adapter rate limiting)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka (best-effort reconciliation event log)
	KafkaEnabled bool   `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaTopic   string `env:"KAFKA_TOPIC" env-default:"trackersync-events"`

	// Tracing
	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`
}
