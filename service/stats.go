package service

import (
	"context"
	"sort"
	"time"

	"github.com/observekit/api-monitor-service/clients/database"
)

const (
	// DefaultWindowDays is substituted for invalid query windows
	DefaultWindowDays = 7
	// MaxWindowDays bounds caller supplied query windows
	MaxWindowDays = 365

	topPathCount = 10
)

// PathAggregate summarizes the traffic of one endpoint over a window
type PathAggregate struct {
	Path         string  `json:"path"`
	Method       string  `json:"method"`
	RequestCount int64   `json:"request_count"`
	ErrorCount   int64   `json:"error_count"`
	ErrorRate    float64 `json:"error_rate"`
}

// StatisticsSummary is the statistics read service response
type StatisticsSummary struct {
	WindowDays        int             `json:"window_days"`
	TotalRequests     int64           `json:"total_requests"`
	TotalErrors       int64           `json:"total_errors"`
	ErrorRate         float64         `json:"error_rate"`
	AvgResponseTimeMs float64         `json:"avg_response_time_ms"`
	AvgResponseSize   float64         `json:"avg_response_size"`
	TopPaths          []PathAggregate `json:"top_paths"`
	TopErrorPaths     []PathAggregate `json:"top_error_paths"`
	UniqueIPs         int             `json:"unique_ips"`
	UniqueUserAgents  int             `json:"unique_user_agents"`
}

// normalizeWindowDays replaces invalid or out of range day windows with
// the default, logging a warning, so a malformed query never errors
func (s *MonitorService) normalizeWindowDays(days int) int {
	if days < 1 || days > MaxWindowDays {
		s.Warn().
			Int("days", days).
			Int("default", DefaultWindowDays).
			Msg("invalid query window substituted with default")
		return DefaultWindowDays
	}
	return days
}

// GetStatistics computes the statistics summary for the last `days`
// days of daily rollups, serving memoized results when fresh
func (s *MonitorService) GetStatistics(ctx context.Context, days int) (StatisticsSummary, error) {
	days = s.normalizeWindowDays(days)

	cacheKey, err := QueryCacheKey(CacheNamespaceStatistics, days)
	if err == nil {
		var cached StatisticsSummary
		if s.getCachedQueryResult(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	now := time.Now().UTC()
	stats, _, err := s.Database.ListDailyStats(ctx, database.StatFilters{
		StartDate: now.AddDate(0, 0, -days),
		EndDate:   now,
	})
	if err != nil {
		return StatisticsSummary{}, err
	}

	summary := summarizeStats(stats)
	summary.WindowDays = days

	if cacheKey != "" {
		s.setCachedQueryResult(ctx, cacheKey, summary, s.config.StatisticsCacheTTL)
	}

	return summary, nil
}

func summarizeStats(stats []database.DailyEndpointStat) StatisticsSummary {
	summary := StatisticsSummary{
		TopPaths:      []PathAggregate{},
		TopErrorPaths: []PathAggregate{},
	}

	type pathKey struct {
		path   string
		method string
	}

	pathTotals := make(map[pathKey]*PathAggregate)
	uniqueIPs := make(map[string]struct{})
	uniqueUserAgents := make(map[string]struct{})

	var responseTimeTotal int64
	var responseSizeTotal int64
	var responseSizeCount int64

	for _, stat := range stats {
		summary.TotalRequests += stat.RequestCount
		summary.TotalErrors += stat.ErrorCount
		responseTimeTotal += stat.ResponseTimeMs

		if stat.ResponseSize != nil {
			responseSizeTotal += *stat.ResponseSize
			responseSizeCount++
		}
		if stat.IP != nil {
			uniqueIPs[*stat.IP] = struct{}{}
		}
		if stat.UserAgent != nil {
			uniqueUserAgents[*stat.UserAgent] = struct{}{}
		}

		key := pathKey{path: stat.Path, method: stat.Method}
		aggregate, ok := pathTotals[key]
		if !ok {
			aggregate = &PathAggregate{Path: stat.Path, Method: stat.Method}
			pathTotals[key] = aggregate
		}
		aggregate.RequestCount += stat.RequestCount
		aggregate.ErrorCount += stat.ErrorCount
	}

	if summary.TotalRequests > 0 {
		summary.ErrorRate = float64(summary.TotalErrors) / float64(summary.TotalRequests) * 100
	}
	if len(stats) > 0 {
		summary.AvgResponseTimeMs = float64(responseTimeTotal) / float64(len(stats))
	}
	if responseSizeCount > 0 {
		summary.AvgResponseSize = float64(responseSizeTotal) / float64(responseSizeCount)
	}

	aggregates := make([]PathAggregate, 0, len(pathTotals))
	for _, aggregate := range pathTotals {
		if aggregate.RequestCount > 0 {
			aggregate.ErrorRate = float64(aggregate.ErrorCount) / float64(aggregate.RequestCount) * 100
		}
		aggregates = append(aggregates, *aggregate)
	}

	sort.Slice(aggregates, func(i, j int) bool {
		return aggregates[i].RequestCount > aggregates[j].RequestCount
	})
	for i, aggregate := range aggregates {
		if i >= topPathCount {
			break
		}
		summary.TopPaths = append(summary.TopPaths, aggregate)
	}

	sort.Slice(aggregates, func(i, j int) bool {
		return aggregates[i].ErrorCount > aggregates[j].ErrorCount
	})
	for i, aggregate := range aggregates {
		if i >= topPathCount || aggregate.ErrorCount == 0 {
			break
		}
		summary.TopErrorPaths = append(summary.TopErrorPaths, aggregate)
	}

	summary.UniqueIPs = len(uniqueIPs)
	summary.UniqueUserAgents = len(uniqueUserAgents)

	return summary
}
