package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observekit/api-monitor-service/clients/cache"
	"github.com/observekit/api-monitor-service/clients/database"
)

func stringPtr(s string) *string {
	return &s
}

func int64Ptr(i int64) *int64 {
	return &i
}

func TestUnitTestNormalizeWindowDaysSubstitutesDefaultForInvalidValues(t *testing.T) {
	service := newTestMonitorService(t, newFakeMonitorDatabase())

	assert.Equal(t, DefaultWindowDays, service.normalizeWindowDays(0))
	assert.Equal(t, DefaultWindowDays, service.normalizeWindowDays(-5))
	assert.Equal(t, DefaultWindowDays, service.normalizeWindowDays(MaxWindowDays+1))

	assert.Equal(t, 1, service.normalizeWindowDays(1))
	assert.Equal(t, 30, service.normalizeWindowDays(30))
	assert.Equal(t, MaxWindowDays, service.normalizeWindowDays(MaxWindowDays))
}

func TestUnitTestSummarizeStatsHandlesEmptyWindow(t *testing.T) {
	summary := summarizeStats(nil)

	assert.Equal(t, int64(0), summary.TotalRequests)
	assert.Equal(t, float64(0), summary.ErrorRate)
	assert.Equal(t, float64(0), summary.AvgResponseTimeMs)
	assert.Empty(t, summary.TopPaths)
	assert.Empty(t, summary.TopErrorPaths)
}

func TestUnitTestSummarizeStatsAggregatesAcrossDays(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	stats := []database.DailyEndpointStat{
		{
			Path: "/api/users", Method: "GET", StatDate: day1,
			RequestCount: 90, ErrorCount: 9, ResponseTimeMs: 100,
			ResponseSize: int64Ptr(2000),
			IP:           stringPtr("203.0.113.9"), UserAgent: stringPtr("curl/8.0"),
		},
		{
			Path: "/api/users", Method: "GET", StatDate: day2,
			RequestCount: 30, ErrorCount: 3, ResponseTimeMs: 200,
			ResponseSize: int64Ptr(4000),
			IP:           stringPtr("203.0.113.9"), UserAgent: stringPtr("test-agent"),
		},
		{
			Path: "/api/orders", Method: "POST", StatDate: day1,
			RequestCount: 80, ErrorCount: 0, ResponseTimeMs: 300,
			IP: stringPtr("198.51.100.7"), UserAgent: stringPtr("curl/8.0"),
		},
	}

	summary := summarizeStats(stats)

	assert.Equal(t, int64(200), summary.TotalRequests)
	assert.Equal(t, int64(12), summary.TotalErrors)
	assert.Equal(t, float64(6), summary.ErrorRate)
	assert.Equal(t, float64(200), summary.AvgResponseTimeMs)
	assert.Equal(t, float64(3000), summary.AvgResponseSize)
	assert.Equal(t, 2, summary.UniqueIPs)
	assert.Equal(t, 2, summary.UniqueUserAgents)

	require.NotEmpty(t, summary.TopPaths)
	assert.Equal(t, "/api/users", summary.TopPaths[0].Path)
	assert.Equal(t, int64(120), summary.TopPaths[0].RequestCount)
	assert.Equal(t, float64(10), summary.TopPaths[0].ErrorRate)

	// paths with zero errors never appear in the error leaderboard
	require.Len(t, summary.TopErrorPaths, 1)
	assert.Equal(t, "/api/users", summary.TopErrorPaths[0].Path)
	assert.Equal(t, int64(12), summary.TopErrorPaths[0].ErrorCount)
}

func TestUnitTestGetStatisticsMemoizesResults(t *testing.T) {
	db := &countingListDatabase{fakeMonitorDatabase: newFakeMonitorDatabase()}

	service := newTestMonitorService(t, db)
	service.Cache = cache.NewInMemoryCache()

	ctx := context.Background()

	first, err := service.GetStatistics(ctx, 7)
	require.NoError(t, err)

	second, err := service.GetStatistics(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, db.listCalls)

	// a different window is a different cache entry
	_, err = service.GetStatistics(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, db.listCalls)
}

// countingListDatabase counts ListDailyStats calls to observe cache hits
type countingListDatabase struct {
	*fakeMonitorDatabase
	listCalls int
}

func (c *countingListDatabase) ListDailyStats(ctx context.Context, filters database.StatFilters) ([]database.DailyEndpointStat, int, error) {
	c.listCalls++
	return c.fakeMonitorDatabase.ListDailyStats(ctx, filters)
}
