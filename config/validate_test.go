package config_test

import (
	"testing"

	"github.com/observekit/api-monitor-service/config"
	"github.com/stretchr/testify/assert"
)

func validTestConfig() config.Config {
	return config.ReadConfig()
}

func TestUnitTestValidateAcceptsDefaultConfig(t *testing.T) {
	err := config.Validate(validTestConfig())

	assert.Nil(t, err)
}

func TestUnitTestValidateRejectsInvalidLogLevel(t *testing.T) {
	testConfig := validTestConfig()
	testConfig.LogLevel = "WHISPER"

	err := config.Validate(testConfig)

	assert.NotNil(t, err)
}

func TestUnitTestValidateRejectsInvalidPort(t *testing.T) {
	testConfig := validTestConfig()
	testConfig.MonitorServicePort = "not-a-port"

	err := config.Validate(testConfig)

	assert.NotNil(t, err)
}

func TestUnitTestValidateRejectsInvalidQueueBackend(t *testing.T) {
	testConfig := validTestConfig()
	testConfig.QueueBackend = "carrier-pigeon"

	err := config.Validate(testConfig)

	assert.NotNil(t, err)
}

func TestUnitTestValidateRejectsKafkaBackendWithoutBrokers(t *testing.T) {
	testConfig := validTestConfig()
	testConfig.QueueBackend = "kafka"
	testConfig.KafkaBrokerURLs = nil

	err := config.Validate(testConfig)

	assert.NotNil(t, err)
}

func TestUnitTestValidateRejectsOutOfRangeSampleRate(t *testing.T) {
	testConfig := validTestConfig()
	testConfig.DetailSuccessSampleRate = 1.5

	err := config.Validate(testConfig)

	assert.NotNil(t, err)
}

func TestUnitTestValidateRejectsInvertedRollupBackoffBounds(t *testing.T) {
	testConfig := validTestConfig()
	testConfig.RollupRetryMinBackoff = testConfig.RollupRetryMaxBackoff * 2

	err := config.Validate(testConfig)

	assert.NotNil(t, err)
}

func TestUnitTestValidateRejectsNonPositiveRetention(t *testing.T) {
	testConfig := validTestConfig()
	testConfig.MetricRetentionDays = 0

	err := config.Validate(testConfig)

	assert.NotNil(t, err)
}
