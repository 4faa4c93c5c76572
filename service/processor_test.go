package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observekit/api-monitor-service/clients/database"
	"github.com/observekit/api-monitor-service/config"
	"github.com/observekit/api-monitor-service/logging"
	"github.com/observekit/api-monitor-service/queue"
)

type statKey struct {
	path   string
	method string
	date   time.Time
}

// fakeMonitorDatabase is an in-memory MonitorDatabase used to exercise
// the queue processors without a real postgres instance. It can be
// programmed to fail a configurable number of increments with write
// conflicts or infrastructure errors.
type fakeMonitorDatabase struct {
	mu sync.Mutex

	stats         map[statKey]*database.DailyEndpointStat
	detailRecords []database.RequestDetailRecord
	alertConfigs  []database.AlertConfig

	incrementAttempts  int
	conflictsRemaining int
	failuresRemaining  int

	listAlertErr error
}

var _ database.MonitorDatabase = (*fakeMonitorDatabase)(nil)

func newFakeMonitorDatabase() *fakeMonitorDatabase {
	return &fakeMonitorDatabase{
		stats: make(map[statKey]*database.DailyEndpointStat),
	}
}

func (f *fakeMonitorDatabase) IncrementDailyStat(ctx context.Context, incr database.DailyStatIncrement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.incrementAttempts++

	if f.conflictsRemaining > 0 {
		f.conflictsRemaining--
		return fmt.Errorf("%w: serialization failure", database.ErrWriteConflict)
	}

	if f.failuresRemaining > 0 {
		f.failuresRemaining--
		return errors.New("connection refused")
	}

	key := statKey{path: incr.Path, method: incr.Method, date: incr.StatDate}
	stat, ok := f.stats[key]
	if !ok {
		stat = &database.DailyEndpointStat{
			Path:     incr.Path,
			Method:   incr.Method,
			StatDate: incr.StatDate,
		}
		f.stats[key] = stat
	}

	stat.RequestCount++
	if incr.IsError {
		stat.ErrorCount++
	}
	stat.ResponseTimeMs = incr.ResponseTimeMs
	stat.StatusCode = incr.StatusCode
	stat.ContentLength = incr.ContentLength
	stat.ResponseSize = incr.ResponseSize
	stat.UserAgent = incr.UserAgent
	stat.IP = incr.IP

	return nil
}

func (f *fakeMonitorDatabase) ListDailyStats(ctx context.Context, filters database.StatFilters) ([]database.DailyEndpointStat, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := make([]database.DailyEndpointStat, 0, len(f.stats))
	for _, stat := range f.stats {
		stats = append(stats, *stat)
	}

	return stats, len(stats), nil
}

func (f *fakeMonitorDatabase) SaveRequestDetailRecord(ctx context.Context, record *database.RequestDetailRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record.ID = int64(len(f.detailRecords) + 1)
	f.detailRecords = append(f.detailRecords, *record)

	return nil
}

func (f *fakeMonitorDatabase) ListRequestDetailRecords(ctx context.Context, filters database.DetailFilters) ([]database.RequestDetailRecord, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := make([]database.RequestDetailRecord, len(f.detailRecords))
	copy(records, f.detailRecords)

	return records, len(records), nil
}

func (f *fakeMonitorDatabase) ListMatchingAlertConfigs(ctx context.Context, path string) ([]database.AlertConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listAlertErr != nil {
		return nil, f.listAlertErr
	}

	var matching []database.AlertConfig
	for _, alertConfig := range f.alertConfigs {
		if !alertConfig.Enabled {
			continue
		}
		if alertConfig.Path == nil || *alertConfig.Path == path {
			matching = append(matching, alertConfig)
		}
	}

	return matching, nil
}

func (f *fakeMonitorDatabase) ListAlertConfigs(ctx context.Context) ([]database.AlertConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	configs := make([]database.AlertConfig, len(f.alertConfigs))
	copy(configs, f.alertConfigs)

	return configs, nil
}

func (f *fakeMonitorDatabase) GetAlertConfig(ctx context.Context, id int64) (*database.AlertConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, alertConfig := range f.alertConfigs {
		if alertConfig.ID == id {
			found := alertConfig
			return &found, nil
		}
	}

	return nil, database.ErrNotFound
}

func (f *fakeMonitorDatabase) CreateAlertConfig(ctx context.Context, config *database.AlertConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	config.ID = int64(len(f.alertConfigs) + 1)
	f.alertConfigs = append(f.alertConfigs, *config)

	return nil
}

func (f *fakeMonitorDatabase) UpdateAlertConfig(ctx context.Context, config *database.AlertConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, alertConfig := range f.alertConfigs {
		if alertConfig.ID == config.ID {
			f.alertConfigs[i] = *config
			return nil
		}
	}

	return database.ErrNotFound
}

func (f *fakeMonitorDatabase) DeleteAlertConfig(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, alertConfig := range f.alertConfigs {
		if alertConfig.ID == id {
			f.alertConfigs = append(f.alertConfigs[:i], f.alertConfigs[i+1:]...)
			return nil
		}
	}

	return database.ErrNotFound
}

func (f *fakeMonitorDatabase) DeleteDailyStatsOlderThanNDays(ctx context.Context, days int64) error {
	return nil
}

func (f *fakeMonitorDatabase) DeleteRequestDetailRecordsOlderThanNDays(ctx context.Context, days int64) error {
	return nil
}

func (f *fakeMonitorDatabase) HealthCheck() error {
	return nil
}

func (f *fakeMonitorDatabase) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.incrementAttempts
}

func (f *fakeMonitorDatabase) stat(path, method string, date time.Time) *database.DailyEndpointStat {
	f.mu.Lock()
	defer f.mu.Unlock()

	stat, ok := f.stats[statKey{path: path, method: method, date: date}]
	if !ok {
		return nil
	}

	found := *stat
	return &found
}

func newTestMonitorService(t *testing.T, db database.MonitorDatabase) *MonitorService {
	t.Helper()

	logger, err := logging.New("ERROR")
	require.NoError(t, err)

	return &MonitorService{
		Database: db,
		config: config.Config{
			RollupMaxAttempts:       3,
			RollupRetryMinBackoff:   time.Millisecond,
			RollupRetryMaxBackoff:   3 * time.Millisecond,
			DetailSuccessSampleRate: 0.1,
		},
		ServiceLogger: &logger,
	}
}

func rollupJobPayload(t *testing.T, event Event) []byte {
	t.Helper()

	payload, err := json.Marshal(RollupJob{
		Event:      event,
		IsError:    event.IsError(),
		BucketDate: event.BucketDate(),
	})
	require.NoError(t, err)

	return payload
}

func TestUnitTestHandleRollupJobCountsEveryConcurrentEvent(t *testing.T) {
	db := newFakeMonitorDatabase()
	service := newTestMonitorService(t, db)

	eventTime := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		event := Event{
			Path:           "/api/users",
			Method:         "GET",
			StatusCode:     200,
			ResponseTimeMs: int64(10 + i),
			Time:           eventTime,
		}
		// every tenth event is a server error
		if i%10 == 0 {
			event.StatusCode = 500
		}

		payload := rollupJobPayload(t, event)

		wg.Add(1)
		go func() {
			defer wg.Done()

			err := service.handleRollupJob(context.Background(), queue.Job{ID: "test", Payload: payload})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	stat := db.stat("/api/users", "GET", eventTime.Truncate(24*time.Hour))
	require.NotNil(t, stat)

	assert.Equal(t, int64(50), stat.RequestCount)
	assert.Equal(t, int64(5), stat.ErrorCount)
}

func TestUnitTestHandleRollupJobRetriesWriteConflicts(t *testing.T) {
	db := newFakeMonitorDatabase()
	db.conflictsRemaining = 2

	service := newTestMonitorService(t, db)

	eventTime := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)
	payload := rollupJobPayload(t, Event{
		Path:       "/api/orders",
		Method:     "POST",
		StatusCode: 201,
		Time:       eventTime,
	})

	err := service.handleRollupJob(context.Background(), queue.Job{ID: "test", Payload: payload})

	assert.NoError(t, err)
	assert.Equal(t, 3, db.attempts())

	stat := db.stat("/api/orders", "POST", eventTime.Truncate(24*time.Hour))
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.RequestCount)
}

func TestUnitTestHandleRollupJobDropsJobAfterConflictRetriesExhausted(t *testing.T) {
	db := newFakeMonitorDatabase()
	db.conflictsRemaining = 100

	service := newTestMonitorService(t, db)

	payload := rollupJobPayload(t, Event{
		Path:       "/api/orders",
		Method:     "POST",
		StatusCode: 201,
		Time:       time.Now().UTC(),
	})

	err := service.handleRollupJob(context.Background(), queue.Job{ID: "test", Payload: payload})

	// the job is dropped, not surfaced for a queue retry
	assert.NoError(t, err)
	assert.Equal(t, 3, db.attempts())
	assert.Empty(t, db.stats)
}

func TestUnitTestHandleRollupJobSurfacesInfrastructureErrors(t *testing.T) {
	db := newFakeMonitorDatabase()
	db.failuresRemaining = 1

	service := newTestMonitorService(t, db)

	payload := rollupJobPayload(t, Event{
		Path:       "/api/orders",
		Method:     "POST",
		StatusCode: 201,
		Time:       time.Now().UTC(),
	})

	err := service.handleRollupJob(context.Background(), queue.Job{ID: "test", Payload: payload})

	assert.Error(t, err)
	assert.Equal(t, 1, db.attempts())
}

func TestUnitTestHandleRollupJobDropsUndecodablePayload(t *testing.T) {
	db := newFakeMonitorDatabase()
	service := newTestMonitorService(t, db)

	err := service.handleRollupJob(context.Background(), queue.Job{ID: "test", Payload: []byte("not json")})

	assert.NoError(t, err)
	assert.Equal(t, 0, db.attempts())
}

func TestUnitTestHandleDetailJobPersistsRecord(t *testing.T) {
	db := newFakeMonitorDatabase()
	service := newTestMonitorService(t, db)

	userAgent := "curl/8.0"
	errorMessage := "Internal Server Error"
	eventTime := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)

	payload, err := json.Marshal(DetailJob{Event: Event{
		Path:           "/api/users",
		Method:         "GET",
		StatusCode:     500,
		ResponseTimeMs: 1250,
		UserAgent:      &userAgent,
		ErrorMessage:   &errorMessage,
		Time:           eventTime,
	}})
	require.NoError(t, err)

	err = service.handleDetailJob(context.Background(), queue.Job{ID: "test", Payload: payload})

	require.NoError(t, err)
	require.Len(t, db.detailRecords, 1)

	record := db.detailRecords[0]
	assert.Equal(t, "/api/users", record.Path)
	assert.Equal(t, 500, record.StatusCode)
	assert.Equal(t, int64(1250), record.ResponseTimeMs)
	assert.Equal(t, eventTime, record.RequestTime)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, errorMessage, *record.ErrorMessage)
}

func TestUnitTestConflictBackoffStaysWithinBounds(t *testing.T) {
	min := 100 * time.Millisecond
	max := 300 * time.Millisecond

	for i := 0; i < 1000; i++ {
		delay := conflictBackoff(min, max)

		require.GreaterOrEqual(t, delay, min)
		require.Less(t, delay, max)
	}
}

func TestUnitTestConflictBackoffHandlesDegenerateRange(t *testing.T) {
	assert.Equal(t, time.Second, conflictBackoff(time.Second, time.Second))
	assert.Equal(t, time.Second, conflictBackoff(time.Second, time.Millisecond))
}
