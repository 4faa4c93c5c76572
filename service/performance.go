package service

import (
	"context"
	"sort"
	"time"

	"github.com/observekit/api-monitor-service/clients/database"
)

const (
	// PerformanceFormatHourly buckets trend points by hour
	PerformanceFormatHourly = "hourly"
	// PerformanceFormatDaily buckets trend points by day
	PerformanceFormatDaily = "daily"

	hourlyBucketLayout = "2006-01-02T15"
	dailyBucketLayout  = "2006-01-02"
)

// PerformanceQuery selects the window, bucketing and scope of a
// performance trend computation
type PerformanceQuery struct {
	Days     int
	Format   string
	Detailed bool
	Paths    []string
}

// PerformancePoint is one bucket of a performance trend series
type PerformancePoint struct {
	Bucket            string  `json:"bucket"`
	RequestCount      int64   `json:"request_count"`
	ErrorCount        int64   `json:"error_count"`
	ErrorRate         float64 `json:"error_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	MaxResponseTimeMs int64   `json:"max_response_time_ms"`
}

// PerformanceTrend is the performance read service response
type PerformanceTrend struct {
	WindowDays    int                           `json:"window_days"`
	Format        string                        `json:"format"`
	Points        []PerformancePoint            `json:"points"`
	PathBreakdown map[string][]PerformancePoint `json:"path_breakdown,omitempty"`
}

// GetPerformanceTrend computes latency and error trends over the
// sampled request details for the query's window, serving memoized
// results when fresh
func (s *MonitorService) GetPerformanceTrend(ctx context.Context, query PerformanceQuery) (PerformanceTrend, error) {
	query.Days = s.normalizeWindowDays(query.Days)

	if query.Format != PerformanceFormatHourly && query.Format != PerformanceFormatDaily {
		if query.Format != "" {
			s.Warn().
				Str("format", query.Format).
				Str("default", PerformanceFormatDaily).
				Msg("invalid trend format substituted with default")
		}
		query.Format = PerformanceFormatDaily
	}

	cacheKey, err := QueryCacheKey(CacheNamespacePerformance, query)
	if err == nil {
		var cached PerformanceTrend
		if s.getCachedQueryResult(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	now := time.Now().UTC()
	records, _, err := s.Database.ListRequestDetailRecords(ctx, database.DetailFilters{
		StartDate: now.AddDate(0, 0, -query.Days),
		EndDate:   now,
		Paths:     query.Paths,
	})
	if err != nil {
		return PerformanceTrend{}, err
	}

	trend := PerformanceTrend{
		WindowDays: query.Days,
		Format:     query.Format,
		Points:     bucketRecords(records, query.Format),
	}

	if query.Detailed {
		trend.PathBreakdown = make(map[string][]PerformancePoint)

		byPath := make(map[string][]database.RequestDetailRecord)
		for _, record := range records {
			byPath[record.Path] = append(byPath[record.Path], record)
		}

		for path, pathRecords := range byPath {
			trend.PathBreakdown[path] = bucketRecords(pathRecords, query.Format)
		}
	}

	if cacheKey != "" {
		s.setCachedQueryResult(ctx, cacheKey, trend, s.config.PerformanceCacheTTL)
	}

	return trend, nil
}

func bucketRecords(records []database.RequestDetailRecord, format string) []PerformancePoint {
	layout := dailyBucketLayout
	if format == PerformanceFormatHourly {
		layout = hourlyBucketLayout
	}

	type bucketTotals struct {
		requestCount      int64
		errorCount        int64
		responseTimeTotal int64
		maxResponseTime   int64
	}

	totals := make(map[string]*bucketTotals)

	for _, record := range records {
		bucket := record.RequestTime.UTC().Format(layout)

		total, ok := totals[bucket]
		if !ok {
			total = &bucketTotals{}
			totals[bucket] = total
		}

		total.requestCount++
		if record.StatusCode >= 400 {
			total.errorCount++
		}
		total.responseTimeTotal += record.ResponseTimeMs
		if record.ResponseTimeMs > total.maxResponseTime {
			total.maxResponseTime = record.ResponseTimeMs
		}
	}

	points := make([]PerformancePoint, 0, len(totals))
	for bucket, total := range totals {
		point := PerformancePoint{
			Bucket:            bucket,
			RequestCount:      total.requestCount,
			ErrorCount:        total.errorCount,
			MaxResponseTimeMs: total.maxResponseTime,
		}

		if total.requestCount > 0 {
			point.ErrorRate = float64(total.errorCount) / float64(total.requestCount) * 100
			point.AvgResponseTimeMs = float64(total.responseTimeTotal) / float64(total.requestCount)
		}

		points = append(points, point)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Bucket < points[j].Bucket
	})

	return points
}
