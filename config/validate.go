package config

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ValidLogLevels     = [4]string{"TRACE", "DEBUG", "INFO", "ERROR"}
	ValidQueueBackends = [2]string{"memory", "kafka"}
)

// Validate validates the provided config
// returning a list of errors that can be unwrapped with `errors.Unwrap`
// or nil if the config is valid
func Validate(config Config) error {
	var validLogLevel bool
	var allErrs error

	for _, validLevel := range ValidLogLevels {
		if config.LogLevel == validLevel {
			validLogLevel = true
			break
		}
	}

	if !validLogLevel {
		allErrs = fmt.Errorf("invalid %s specified %s, supported values are %v", LOG_LEVEL_ENVIRONMENT_KEY, config.LogLevel, ValidLogLevels)
	}

	_, err := strconv.Atoi(config.MonitorServicePort)

	if err != nil {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s", MONITOR_SERVICE_PORT_ENVIRONMENT_KEY, config.MonitorServicePort))
	}

	var validQueueBackend bool
	for _, validBackend := range ValidQueueBackends {
		if config.QueueBackend == validBackend {
			validQueueBackend = true
			break
		}
	}

	if !validQueueBackend {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, supported values are %v", QUEUE_BACKEND_ENVIRONMENT_KEY, config.QueueBackend, ValidQueueBackends))
	}

	if config.QueueBackend == "kafka" && len(config.KafkaBrokerURLs) == 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified, must not be empty when the kafka queue backend is selected", KAFKA_BROKER_URLS_ENVIRONMENT_KEY))
	}

	if config.QueueBufferSize < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be greater than zero", QUEUE_BUFFER_SIZE_ENVIRONMENT_KEY, config.QueueBufferSize))
	}

	if config.QueueConsumerCount < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be greater than zero", QUEUE_CONSUMER_COUNT_ENVIRONMENT_KEY, config.QueueConsumerCount))
	}

	if config.QueueMaxAttempts < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be greater than zero", QUEUE_MAX_ATTEMPTS_ENVIRONMENT_KEY, config.QueueMaxAttempts))
	}

	if config.RollupMaxAttempts < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be greater than zero", ROLLUP_MAX_ATTEMPTS_ENVIRONMENT_KEY, config.RollupMaxAttempts))
	}

	if config.DetailMaxAttempts < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be greater than zero", DETAIL_MAX_ATTEMPTS_ENVIRONMENT_KEY, config.DetailMaxAttempts))
	}

	if config.RollupRetryMinBackoff <= 0 || config.RollupRetryMaxBackoff < config.RollupRetryMinBackoff {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid rollup retry backoff bounds specified %v-%v, min must be positive and max must not be less than min", config.RollupRetryMinBackoff, config.RollupRetryMaxBackoff))
	}

	if config.DetailSuccessSampleRate < 0 || config.DetailSuccessSampleRate > 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %f, must be between 0 and 1", DETAIL_SUCCESS_SAMPLE_RATE_ENVIRONMENT_KEY, config.DetailSuccessSampleRate))
	}

	if config.CacheEnabled && config.RedisEndpointURL == "" {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty when the cache is enabled", REDIS_ENDPOINT_URL_ENVIRONMENT_KEY, config.RedisEndpointURL))
	}

	if config.DatabaseEnabled && config.DatabaseEndpointURL == "" {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty when the database is enabled", DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY, config.DatabaseEndpointURL))
	}

	if config.MetricRetentionDays < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be greater than zero", METRIC_RETENTION_DAYS_ENVIRONMENT_KEY, config.MetricRetentionDays))
	}

	return allErrs
}
