// package config provides functions and values
// for reading and validating api monitor service configuration
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type Config struct {
	LogLevel           string
	MonitorServicePort string

	DatabaseEnabled                  bool
	DatabaseName                     string
	DatabaseEndpointURL              string
	DatabaseUsername                 string
	DatabasePassword                 string
	DatabaseSSLEnabled               bool
	DatabaseReadTimeoutSeconds       int64
	DatabaseMaxIdleConnections       int64
	DatabaseConnectionMaxIdleSeconds int64
	DatabaseMaxOpenConnections       int64
	DatabaseQueryLoggingEnabled      bool
	RunDatabaseMigrations            bool

	CacheEnabled     bool
	RedisEndpointURL string
	RedisPassword    string

	QueueBackend            string
	QueueBufferSize         int64
	QueueConsumerCount      int64
	QueueMaxAttempts        int64
	QueueRetryInitialDelay  time.Duration
	KafkaBrokerURLs         []string
	KafkaConsumerGroup      string
	KafkaTopicPrefix        string
	RollupMaxAttempts       int64
	RollupRetryMinBackoff   time.Duration
	RollupRetryMaxBackoff   time.Duration
	DetailMaxAttempts       int64
	DetailSuccessSampleRate float64

	RecentCallsCacheTTL time.Duration
	TrendBucketCacheTTL time.Duration
	StatisticsCacheTTL  time.Duration
	PerformanceCacheTTL time.Duration
	RealtimeCacheTTL    time.Duration

	MetricRetentionDays     int64
	MetricPruningEnabled    bool
	MetricPruningInterval   time.Duration
	MetricPruningStartDelay time.Duration
}

const (
	LOG_LEVEL_ENVIRONMENT_KEY            = "LOG_LEVEL"
	DEFAULT_LOG_LEVEL                    = "INFO"
	MONITOR_SERVICE_PORT_ENVIRONMENT_KEY = "MONITOR_SERVICE_PORT"
	DEFAULT_MONITOR_SERVICE_PORT         = "7777"

	DATABASE_ENABLED_ENVIRONMENT_KEY                     = "DATABASE_ENABLED"
	DATABASE_NAME_ENVIRONMENT_KEY                        = "DATABASE_NAME"
	DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY                = "DATABASE_ENDPOINT_URL"
	DATABASE_USERNAME_ENVIRONMENT_KEY                    = "DATABASE_USERNAME"
	DATABASE_PASSWORD_ENVIRONMENT_KEY                    = "DATABASE_PASSWORD"
	DATABASE_SSL_ENABLED_ENVIRONMENT_KEY                 = "DATABASE_SSL_ENABLED"
	DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY        = "DATABASE_READ_TIMEOUT_SECONDS"
	DATABASE_MAX_IDLE_CONNECTIONS_ENVIRONMENT_KEY        = "DATABASE_MAX_IDLE_CONNECTIONS"
	DATABASE_CONNECTION_MAX_IDLE_SECONDS_ENVIRONMENT_KEY = "DATABASE_CONNECTION_MAX_IDLE_SECONDS"
	DATABASE_MAX_OPEN_CONNECTIONS_ENVIRONMENT_KEY        = "DATABASE_MAX_OPEN_CONNECTIONS"
	DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY       = "DATABASE_QUERY_LOGGING_ENABLED"
	RUN_DATABASE_MIGRATIONS_ENVIRONMENT_KEY              = "RUN_DATABASE_MIGRATIONS"

	CACHE_ENABLED_ENVIRONMENT_KEY      = "CACHE_ENABLED"
	REDIS_ENDPOINT_URL_ENVIRONMENT_KEY = "REDIS_ENDPOINT_URL"
	REDIS_PASSWORD_ENVIRONMENT_KEY     = "REDIS_PASSWORD"

	QUEUE_BACKEND_ENVIRONMENT_KEY                     = "QUEUE_BACKEND"
	DEFAULT_QUEUE_BACKEND                             = "memory"
	QUEUE_BUFFER_SIZE_ENVIRONMENT_KEY                 = "QUEUE_BUFFER_SIZE"
	QUEUE_CONSUMER_COUNT_ENVIRONMENT_KEY              = "QUEUE_CONSUMER_COUNT"
	QUEUE_MAX_ATTEMPTS_ENVIRONMENT_KEY                = "QUEUE_MAX_ATTEMPTS"
	QUEUE_RETRY_INITIAL_DELAY_SECONDS_ENVIRONMENT_KEY = "QUEUE_RETRY_INITIAL_DELAY_SECONDS"
	KAFKA_BROKER_URLS_ENVIRONMENT_KEY                 = "KAFKA_BROKER_URLS"
	KAFKA_CONSUMER_GROUP_ENVIRONMENT_KEY              = "KAFKA_CONSUMER_GROUP"
	KAFKA_TOPIC_PREFIX_ENVIRONMENT_KEY                = "KAFKA_TOPIC_PREFIX"

	ROLLUP_MAX_ATTEMPTS_ENVIRONMENT_KEY                   = "ROLLUP_MAX_ATTEMPTS"
	ROLLUP_RETRY_MIN_BACKOFF_MILLISECONDS_ENVIRONMENT_KEY = "ROLLUP_RETRY_MIN_BACKOFF_MILLISECONDS"
	ROLLUP_RETRY_MAX_BACKOFF_MILLISECONDS_ENVIRONMENT_KEY = "ROLLUP_RETRY_MAX_BACKOFF_MILLISECONDS"
	DETAIL_MAX_ATTEMPTS_ENVIRONMENT_KEY                   = "DETAIL_MAX_ATTEMPTS"
	DETAIL_SUCCESS_SAMPLE_RATE_ENVIRONMENT_KEY            = "DETAIL_SUCCESS_SAMPLE_RATE"

	RECENT_CALLS_CACHE_TTL_SECONDS_ENVIRONMENT_KEY = "RECENT_CALLS_CACHE_TTL_SECONDS"
	TREND_BUCKET_CACHE_TTL_SECONDS_ENVIRONMENT_KEY = "TREND_BUCKET_CACHE_TTL_SECONDS"
	STATISTICS_CACHE_TTL_SECONDS_ENVIRONMENT_KEY   = "STATISTICS_CACHE_TTL_SECONDS"
	PERFORMANCE_CACHE_TTL_SECONDS_ENVIRONMENT_KEY  = "PERFORMANCE_CACHE_TTL_SECONDS"
	REALTIME_CACHE_TTL_SECONDS_ENVIRONMENT_KEY     = "REALTIME_CACHE_TTL_SECONDS"

	METRIC_RETENTION_DAYS_ENVIRONMENT_KEY              = "METRIC_RETENTION_DAYS"
	METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY             = "METRIC_PRUNING_ENABLED"
	METRIC_PRUNING_INTERVAL_SECONDS_ENVIRONMENT_KEY    = "METRIC_PRUNING_INTERVAL_SECONDS"
	METRIC_PRUNING_START_DELAY_SECONDS_ENVIRONMENT_KEY = "METRIC_PRUNING_START_DELAY_SECONDS"
)

// EnvOrDefault fetches an environment variable value, or if not set returns the fallback value
func EnvOrDefault(key string, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// EnvOrDefaultInt64 fetches an environment variable value as an int64, or if not set returns the fallback value
func EnvOrDefaultInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		return cast.ToInt64(val)
	}
	return fallback
}

// EnvOrDefaultFloat64 fetches an environment variable value as a float64, or if not set returns the fallback value
func EnvOrDefaultFloat64(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		return cast.ToFloat64(val)
	}
	return fallback
}

// EnvOrDefaultBool fetches an environment variable value as a bool, or if not set returns the fallback value
func EnvOrDefaultBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		return cast.ToBool(val)
	}
	return fallback
}

// ReadConfig attempts to parse service config from environment values
// the returned config may be invalid and should be validated via the `Validate`
// function of the config package before use
func ReadConfig() Config {
	return Config{
		LogLevel:           EnvOrDefault(LOG_LEVEL_ENVIRONMENT_KEY, DEFAULT_LOG_LEVEL),
		MonitorServicePort: EnvOrDefault(MONITOR_SERVICE_PORT_ENVIRONMENT_KEY, DEFAULT_MONITOR_SERVICE_PORT),

		DatabaseEnabled:                  EnvOrDefaultBool(DATABASE_ENABLED_ENVIRONMENT_KEY, true),
		DatabaseName:                     EnvOrDefault(DATABASE_NAME_ENVIRONMENT_KEY, "api_monitor"),
		DatabaseEndpointURL:              EnvOrDefault(DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY, "localhost:5432"),
		DatabaseUsername:                 EnvOrDefault(DATABASE_USERNAME_ENVIRONMENT_KEY, "postgres"),
		DatabasePassword:                 EnvOrDefault(DATABASE_PASSWORD_ENVIRONMENT_KEY, ""),
		DatabaseSSLEnabled:               EnvOrDefaultBool(DATABASE_SSL_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseReadTimeoutSeconds:       EnvOrDefaultInt64(DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY, 60),
		DatabaseMaxIdleConnections:       EnvOrDefaultInt64(DATABASE_MAX_IDLE_CONNECTIONS_ENVIRONMENT_KEY, 20),
		DatabaseConnectionMaxIdleSeconds: EnvOrDefaultInt64(DATABASE_CONNECTION_MAX_IDLE_SECONDS_ENVIRONMENT_KEY, 5),
		DatabaseMaxOpenConnections:       EnvOrDefaultInt64(DATABASE_MAX_OPEN_CONNECTIONS_ENVIRONMENT_KEY, 100),
		DatabaseQueryLoggingEnabled:      EnvOrDefaultBool(DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY, false),
		RunDatabaseMigrations:            EnvOrDefaultBool(RUN_DATABASE_MIGRATIONS_ENVIRONMENT_KEY, false),

		CacheEnabled:     EnvOrDefaultBool(CACHE_ENABLED_ENVIRONMENT_KEY, true),
		RedisEndpointURL: EnvOrDefault(REDIS_ENDPOINT_URL_ENVIRONMENT_KEY, "localhost:6379"),
		RedisPassword:    EnvOrDefault(REDIS_PASSWORD_ENVIRONMENT_KEY, ""),

		QueueBackend:           EnvOrDefault(QUEUE_BACKEND_ENVIRONMENT_KEY, DEFAULT_QUEUE_BACKEND),
		QueueBufferSize:        EnvOrDefaultInt64(QUEUE_BUFFER_SIZE_ENVIRONMENT_KEY, 10000),
		QueueConsumerCount:     EnvOrDefaultInt64(QUEUE_CONSUMER_COUNT_ENVIRONMENT_KEY, 4),
		QueueMaxAttempts:       EnvOrDefaultInt64(QUEUE_MAX_ATTEMPTS_ENVIRONMENT_KEY, 5),
		QueueRetryInitialDelay: time.Duration(EnvOrDefaultInt64(QUEUE_RETRY_INITIAL_DELAY_SECONDS_ENVIRONMENT_KEY, 1)) * time.Second,
		KafkaBrokerURLs:        splitNonEmpty(EnvOrDefault(KAFKA_BROKER_URLS_ENVIRONMENT_KEY, "localhost:9092")),
		KafkaConsumerGroup:     EnvOrDefault(KAFKA_CONSUMER_GROUP_ENVIRONMENT_KEY, "api-monitor"),
		KafkaTopicPrefix:       EnvOrDefault(KAFKA_TOPIC_PREFIX_ENVIRONMENT_KEY, "api-monitor"),

		RollupMaxAttempts:       EnvOrDefaultInt64(ROLLUP_MAX_ATTEMPTS_ENVIRONMENT_KEY, 3),
		RollupRetryMinBackoff:   time.Duration(EnvOrDefaultInt64(ROLLUP_RETRY_MIN_BACKOFF_MILLISECONDS_ENVIRONMENT_KEY, 100)) * time.Millisecond,
		RollupRetryMaxBackoff:   time.Duration(EnvOrDefaultInt64(ROLLUP_RETRY_MAX_BACKOFF_MILLISECONDS_ENVIRONMENT_KEY, 300)) * time.Millisecond,
		DetailMaxAttempts:       EnvOrDefaultInt64(DETAIL_MAX_ATTEMPTS_ENVIRONMENT_KEY, 5),
		DetailSuccessSampleRate: EnvOrDefaultFloat64(DETAIL_SUCCESS_SAMPLE_RATE_ENVIRONMENT_KEY, 0.10),

		RecentCallsCacheTTL:     time.Duration(EnvOrDefaultInt64(RECENT_CALLS_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, 86400)) * time.Second,
		TrendBucketCacheTTL:     time.Duration(EnvOrDefaultInt64(TREND_BUCKET_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, 3600)) * time.Second,
		StatisticsCacheTTL:      time.Duration(EnvOrDefaultInt64(STATISTICS_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, 300)) * time.Second,
		PerformanceCacheTTL:     time.Duration(EnvOrDefaultInt64(PERFORMANCE_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, 600)) * time.Second,
		RealtimeCacheTTL:        time.Duration(EnvOrDefaultInt64(REALTIME_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, 60)) * time.Second,
		MetricRetentionDays:     EnvOrDefaultInt64(METRIC_RETENTION_DAYS_ENVIRONMENT_KEY, 30),
		MetricPruningEnabled:    EnvOrDefaultBool(METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY, true),
		MetricPruningInterval:   time.Duration(EnvOrDefaultInt64(METRIC_PRUNING_INTERVAL_SECONDS_ENVIRONMENT_KEY, 86400)) * time.Second,
		MetricPruningStartDelay: time.Duration(EnvOrDefaultInt64(METRIC_PRUNING_START_DELAY_SECONDS_ENVIRONMENT_KEY, 10)) * time.Second,
	}
}

func splitNonEmpty(raw string) []string {
	var values []string
	for _, value := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
