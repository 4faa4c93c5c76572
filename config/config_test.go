package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/observekit/api-monitor-service/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	randomEnvironmentVariableKey = "TEST_MONITOR_RANDOM_VALUE"
)

func TestUnitTestEnvOrDefaultReturnsDefaultIfEnvironmentVariableNotSet(t *testing.T) {
	err := os.Unsetenv(randomEnvironmentVariableKey)

	assert.Nil(t, err, "error clearing environment variable")

	defaultValue := "default"

	value := config.EnvOrDefault(randomEnvironmentVariableKey, defaultValue)

	assert.Equal(t, defaultValue, value)
}

func TestUnitTestEnvOrDefaultReturnsSetValue(t *testing.T) {
	setValue := "set"
	err := os.Setenv(randomEnvironmentVariableKey, setValue)

	assert.Nil(t, err, "error setting environment variable")
	defer os.Unsetenv(randomEnvironmentVariableKey)

	value := config.EnvOrDefault(randomEnvironmentVariableKey, "default")

	assert.Equal(t, setValue, value)
}

func TestUnitTestEnvOrDefaultInt64ParsesSetValue(t *testing.T) {
	err := os.Setenv(randomEnvironmentVariableKey, "42")

	assert.Nil(t, err, "error setting environment variable")
	defer os.Unsetenv(randomEnvironmentVariableKey)

	value := config.EnvOrDefaultInt64(randomEnvironmentVariableKey, 7)

	assert.Equal(t, int64(42), value)
}

func TestUnitTestEnvOrDefaultInt64ReturnsDefaultIfEnvironmentVariableNotSet(t *testing.T) {
	err := os.Unsetenv(randomEnvironmentVariableKey)

	assert.Nil(t, err, "error clearing environment variable")

	value := config.EnvOrDefaultInt64(randomEnvironmentVariableKey, 7)

	assert.Equal(t, int64(7), value)
}

func TestUnitTestEnvOrDefaultFloat64ParsesSetValue(t *testing.T) {
	err := os.Setenv(randomEnvironmentVariableKey, "0.25")

	assert.Nil(t, err, "error setting environment variable")
	defer os.Unsetenv(randomEnvironmentVariableKey)

	value := config.EnvOrDefaultFloat64(randomEnvironmentVariableKey, 0.5)

	assert.Equal(t, 0.25, value)
}

func TestUnitTestEnvOrDefaultBoolParsesSetValue(t *testing.T) {
	err := os.Setenv(randomEnvironmentVariableKey, "true")

	assert.Nil(t, err, "error setting environment variable")
	defer os.Unsetenv(randomEnvironmentVariableKey)

	value := config.EnvOrDefaultBool(randomEnvironmentVariableKey, false)

	assert.True(t, value)
}

func TestUnitTestReadConfigAppliesDefaults(t *testing.T) {
	require.NoError(t, os.Unsetenv(config.LOG_LEVEL_ENVIRONMENT_KEY))
	require.NoError(t, os.Unsetenv(config.QUEUE_BACKEND_ENVIRONMENT_KEY))
	require.NoError(t, os.Unsetenv(config.DETAIL_SUCCESS_SAMPLE_RATE_ENVIRONMENT_KEY))

	readConfig := config.ReadConfig()

	assert.Equal(t, config.DEFAULT_LOG_LEVEL, readConfig.LogLevel)
	assert.Equal(t, config.DEFAULT_MONITOR_SERVICE_PORT, readConfig.MonitorServicePort)
	assert.Equal(t, config.DEFAULT_QUEUE_BACKEND, readConfig.QueueBackend)
	assert.Equal(t, 0.10, readConfig.DetailSuccessSampleRate)
	assert.Equal(t, int64(3), readConfig.RollupMaxAttempts)
	assert.Equal(t, 100*time.Millisecond, readConfig.RollupRetryMinBackoff)
	assert.Equal(t, 300*time.Millisecond, readConfig.RollupRetryMaxBackoff)
}

func TestUnitTestReadConfigParsesKafkaBrokerList(t *testing.T) {
	require.NoError(t, os.Setenv(config.KAFKA_BROKER_URLS_ENVIRONMENT_KEY, "broker1:9092, broker2:9092,,"))
	defer os.Unsetenv(config.KAFKA_BROKER_URLS_ENVIRONMENT_KEY)

	readConfig := config.ReadConfig()

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, readConfig.KafkaBrokerURLs)
}
