package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// ErrWriteConflict wraps serialization failures and unique constraint
// violations raised by concurrent rollup writers racing on one bucket.
// Callers decide whether to retry the whole read-modify-write.
var ErrWriteConflict = errors.New("daily stat write conflict")

type MonitorDatabase interface {
	// IncrementDailyStat applies a single event to its daily rollup bucket
	// inside one serializable transaction, creating the bucket if needed.
	// Returns an error wrapping ErrWriteConflict when the transaction
	// collided with a concurrent writer and can be retried.
	IncrementDailyStat(ctx context.Context, incr DailyStatIncrement) error
	ListDailyStats(ctx context.Context, filters StatFilters) ([]DailyEndpointStat, int, error)

	SaveRequestDetailRecord(ctx context.Context, record *RequestDetailRecord) error
	ListRequestDetailRecords(ctx context.Context, filters DetailFilters) ([]RequestDetailRecord, int, error)

	// ListMatchingAlertConfigs returns the enabled alert configs whose
	// path is unset (global rules) or equal to the provided path
	ListMatchingAlertConfigs(ctx context.Context, path string) ([]AlertConfig, error)
	ListAlertConfigs(ctx context.Context) ([]AlertConfig, error)
	GetAlertConfig(ctx context.Context, id int64) (*AlertConfig, error)
	CreateAlertConfig(ctx context.Context, config *AlertConfig) error
	UpdateAlertConfig(ctx context.Context, config *AlertConfig) error
	DeleteAlertConfig(ctx context.Context, id int64) error

	DeleteDailyStatsOlderThanNDays(ctx context.Context, days int64) error
	DeleteRequestDetailRecordsOlderThanNDays(ctx context.Context, days int64) error

	HealthCheck() error
}
