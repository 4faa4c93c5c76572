package noop

import (
	"context"

	"github.com/observekit/api-monitor-service/clients/database"
)

// Noop is a database client that does nothing, used when the service
// runs with the durable store disabled
type Noop struct{}

var _ database.MonitorDatabase = (*Noop)(nil)

func New() *Noop {
	return &Noop{}
}

func (n *Noop) IncrementDailyStat(ctx context.Context, incr database.DailyStatIncrement) error {
	return nil
}

func (n *Noop) ListDailyStats(ctx context.Context, filters database.StatFilters) ([]database.DailyEndpointStat, int, error) {
	return []database.DailyEndpointStat{}, 0, nil
}

func (n *Noop) SaveRequestDetailRecord(ctx context.Context, record *database.RequestDetailRecord) error {
	return nil
}

func (n *Noop) ListRequestDetailRecords(ctx context.Context, filters database.DetailFilters) ([]database.RequestDetailRecord, int, error) {
	return []database.RequestDetailRecord{}, 0, nil
}

func (n *Noop) ListMatchingAlertConfigs(ctx context.Context, path string) ([]database.AlertConfig, error) {
	return []database.AlertConfig{}, nil
}

func (n *Noop) ListAlertConfigs(ctx context.Context) ([]database.AlertConfig, error) {
	return []database.AlertConfig{}, nil
}

func (n *Noop) GetAlertConfig(ctx context.Context, id int64) (*database.AlertConfig, error) {
	return nil, database.ErrNotFound
}

func (n *Noop) CreateAlertConfig(ctx context.Context, config *database.AlertConfig) error {
	return nil
}

func (n *Noop) UpdateAlertConfig(ctx context.Context, config *database.AlertConfig) error {
	return nil
}

func (n *Noop) DeleteAlertConfig(ctx context.Context, id int64) error {
	return nil
}

func (n *Noop) DeleteDailyStatsOlderThanNDays(ctx context.Context, days int64) error {
	return nil
}

func (n *Noop) DeleteRequestDetailRecordsOlderThanNDays(ctx context.Context, days int64) error {
	return nil
}

func (n *Noop) HealthCheck() error {
	return nil
}
