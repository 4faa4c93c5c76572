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

func TestUnitTestBucketRecordsGroupsByDay(t *testing.T) {
	records := []database.RequestDetailRecord{
		{Path: "/a", StatusCode: 200, ResponseTimeMs: 100, RequestTime: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{Path: "/a", StatusCode: 500, ResponseTimeMs: 300, RequestTime: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
		{Path: "/a", StatusCode: 200, ResponseTimeMs: 50, RequestTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}

	points := bucketRecords(records, PerformanceFormatDaily)

	require.Len(t, points, 2)

	assert.Equal(t, "2026-03-01", points[0].Bucket)
	assert.Equal(t, int64(2), points[0].RequestCount)
	assert.Equal(t, int64(1), points[0].ErrorCount)
	assert.Equal(t, float64(50), points[0].ErrorRate)
	assert.Equal(t, float64(200), points[0].AvgResponseTimeMs)
	assert.Equal(t, int64(300), points[0].MaxResponseTimeMs)

	assert.Equal(t, "2026-03-02", points[1].Bucket)
	assert.Equal(t, int64(1), points[1].RequestCount)
}

func TestUnitTestBucketRecordsGroupsByHour(t *testing.T) {
	records := []database.RequestDetailRecord{
		{Path: "/a", StatusCode: 200, ResponseTimeMs: 100, RequestTime: time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)},
		{Path: "/a", StatusCode: 200, ResponseTimeMs: 200, RequestTime: time.Date(2026, 3, 1, 10, 55, 0, 0, time.UTC)},
		{Path: "/a", StatusCode: 200, ResponseTimeMs: 50, RequestTime: time.Date(2026, 3, 1, 11, 5, 0, 0, time.UTC)},
	}

	points := bucketRecords(records, PerformanceFormatHourly)

	require.Len(t, points, 2)
	assert.Equal(t, "2026-03-01T10", points[0].Bucket)
	assert.Equal(t, int64(2), points[0].RequestCount)
	assert.Equal(t, "2026-03-01T11", points[1].Bucket)
}

func TestUnitTestGetPerformanceTrendNormalizesQuery(t *testing.T) {
	db := newFakeMonitorDatabase()
	service := newTestMonitorService(t, db)
	service.Cache = cache.NewInMemoryCache()

	trend, err := service.GetPerformanceTrend(context.Background(), PerformanceQuery{
		Days:   -1,
		Format: "weekly",
	})

	require.NoError(t, err)
	assert.Equal(t, DefaultWindowDays, trend.WindowDays)
	assert.Equal(t, PerformanceFormatDaily, trend.Format)
}

func TestUnitTestGetPerformanceTrendDetailedBreaksDownByPath(t *testing.T) {
	db := newFakeMonitorDatabase()
	db.detailRecords = []database.RequestDetailRecord{
		{Path: "/a", StatusCode: 200, ResponseTimeMs: 100, RequestTime: time.Now().UTC()},
		{Path: "/b", StatusCode: 500, ResponseTimeMs: 300, RequestTime: time.Now().UTC()},
	}

	service := newTestMonitorService(t, db)
	service.Cache = cache.NewInMemoryCache()

	trend, err := service.GetPerformanceTrend(context.Background(), PerformanceQuery{
		Days:     7,
		Format:   PerformanceFormatDaily,
		Detailed: true,
	})

	require.NoError(t, err)
	require.Len(t, trend.PathBreakdown, 2)

	require.Len(t, trend.PathBreakdown["/a"], 1)
	assert.Equal(t, int64(1), trend.PathBreakdown["/a"][0].RequestCount)
	assert.Equal(t, int64(0), trend.PathBreakdown["/a"][0].ErrorCount)

	require.Len(t, trend.PathBreakdown["/b"], 1)
	assert.Equal(t, int64(1), trend.PathBreakdown["/b"][0].ErrorCount)
}
