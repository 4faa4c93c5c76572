package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/observekit/api-monitor-service/clients/cache"
	"github.com/observekit/api-monitor-service/logging"
)

const (
	// CacheKeyPrefix namespaces every monitor key in the cache
	CacheKeyPrefix = "api_monitor"

	recentCallsKey = "recent_calls"
	slowestApisKey = "slowest_apis"

	// RecentCallsCap bounds the recent calls list
	RecentCallsCap = 100
	// SlowestApisCap bounds the slowest calls sorted set
	SlowestApisCap = 50

	// TrendBucketMinutes is the width of one call trend bucket
	TrendBucketMinutes = 5
	// TrendBucketCount is how many buckets a trend query spans
	TrendBucketCount = 12

	trendBucketLayout = "2006-01-02T15:04"
)

// RealtimeViewConfig wraps the TTLs applied to each realtime structure
type RealtimeViewConfig struct {
	RecentCallsTTL time.Duration
	TrendBucketTTL time.Duration
}

// RealtimeView maintains the low latency dashboard view of recent
// traffic on top of the cache client. Every structure is best effort:
// callers treat errors as a missing view and fall back to the durable
// store, never to a request failure.
type RealtimeView struct {
	cacheClient cache.Cache
	config      RealtimeViewConfig

	*logging.ServiceLogger
}

// SlowCall is one entry of the slowest calls view
type SlowCall struct {
	Path           string    `json:"path"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ObservedAt     time.Time `json:"observed_at"`
}

// TrendPoint is one five minute bucket of the call trend
type TrendPoint struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// PathCount aggregates the realtime counters for one endpoint
type PathCount struct {
	Path       string  `json:"path"`
	Method     string  `json:"method"`
	Count      int64   `json:"count"`
	ErrorCount int64   `json:"error_count"`
	ErrorRate  float64 `json:"error_rate"`
}

// NewRealtimeView creates a new RealtimeView on top of the provided
// cache client
func NewRealtimeView(cacheClient cache.Cache, config RealtimeViewConfig, logger *logging.ServiceLogger) *RealtimeView {
	return &RealtimeView{
		cacheClient:   cacheClient,
		config:        config,
		ServiceLogger: logger,
	}
}

// RecordEvent folds one event into every realtime structure, returning
// the combined errors (if any). Each structure is updated independently
// so a failure in one does not lose the others.
func (v *RealtimeView) RecordEvent(ctx context.Context, event Event) error {
	var allErrs error

	encoded, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := v.cacheClient.PushCapped(ctx, v.key(recentCallsKey), encoded, RecentCallsCap, v.config.RecentCallsTTL); err != nil {
		allErrs = errors.Join(allErrs, err)
	}

	if _, err := v.cacheClient.Incr(ctx, v.countKey(event.Path, event.Method), v.config.RecentCallsTTL); err != nil {
		allErrs = errors.Join(allErrs, err)
	}

	if event.IsError() {
		if _, err := v.cacheClient.Incr(ctx, v.errorKey(event.Path, event.Method), v.config.RecentCallsTTL); err != nil {
			allErrs = errors.Join(allErrs, err)
		}
	}

	if _, err := v.cacheClient.Incr(ctx, v.statusKey(event.StatusCode), v.config.RecentCallsTTL); err != nil {
		allErrs = errors.Join(allErrs, err)
	}

	member := fmt.Sprintf("%s:%s:%d:%d", event.Path, event.Method, event.StatusCode, event.Time.UnixMilli())
	if err := v.cacheClient.AddToSortedSetCapped(ctx, v.key(slowestApisKey), float64(event.ResponseTimeMs), member, SlowestApisCap, v.config.RecentCallsTTL); err != nil {
		allErrs = errors.Join(allErrs, err)
	}

	if _, err := v.cacheClient.Incr(ctx, v.trendKey(event.Time), v.config.TrendBucketTTL); err != nil {
		allErrs = errors.Join(allErrs, err)
	}

	return allErrs
}

// GetRecentCalls returns up to limit of the most recently recorded events
func (v *RealtimeView) GetRecentCalls(ctx context.Context, limit int64) ([]Event, error) {
	if limit <= 0 || limit > RecentCallsCap {
		limit = RecentCallsCap
	}

	entries, err := v.cacheClient.Range(ctx, v.key(recentCallsKey), 0, limit-1)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		var event Event
		if err := json.Unmarshal(entry, &event); err != nil {
			v.Debug().Err(err).Msg("skipping undecodable recent call entry")
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// GetSlowestApis returns up to limit of the slowest observed calls
// in descending latency order
func (v *RealtimeView) GetSlowestApis(ctx context.Context, limit int64) ([]SlowCall, error) {
	if limit <= 0 || limit > SlowestApisCap {
		limit = SlowestApisCap
	}

	members, err := v.cacheClient.SortedSetRangeByScoreDesc(ctx, v.key(slowestApisKey), limit)
	if err != nil {
		return nil, err
	}

	calls := make([]SlowCall, 0, len(members))
	for _, member := range members {
		call, err := parseSlowCallMember(member)
		if err != nil {
			v.Debug().Err(err).Msg("skipping unparseable slowest api member")
			continue
		}
		calls = append(calls, call)
	}

	return calls, nil
}

// GetStatusDistribution returns the request count observed per status code
func (v *RealtimeView) GetStatusDistribution(ctx context.Context) (map[string]int64, error) {
	prefix := v.key("status") + ":"

	values, err := v.cacheClient.GetByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	distribution := make(map[string]int64, len(values))
	for key, value := range values {
		count, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			continue
		}
		distribution[strings.TrimPrefix(key, prefix)] = count
	}

	return distribution, nil
}

// GetCallTrend returns the call counts for the last TrendBucketCount
// five minute buckets, oldest first, with zeroes for empty buckets
func (v *RealtimeView) GetCallTrend(ctx context.Context) ([]TrendPoint, error) {
	now := time.Now().UTC()

	points := make([]TrendPoint, 0, TrendBucketCount)
	for i := TrendBucketCount - 1; i >= 0; i-- {
		bucketTime := now.Add(-time.Duration(i) * TrendBucketMinutes * time.Minute)

		point := TrendPoint{Bucket: trendBucket(bucketTime)}

		value, err := v.cacheClient.Get(ctx, v.trendKey(bucketTime))
		if err == nil {
			if count, parseErr := strconv.ParseInt(string(value), 10, 64); parseErr == nil {
				point.Count = count
			}
		} else if !errors.Is(err, cache.ErrNotFound) {
			return nil, err
		}

		points = append(points, point)
	}

	return points, nil
}

// GetPathCounts returns the realtime request and error counters per
// endpoint along with the derived error rate
func (v *RealtimeView) GetPathCounts(ctx context.Context) ([]PathCount, error) {
	countPrefix := v.key("count") + ":"
	errorPrefix := v.key("error") + ":"

	counts, err := v.cacheClient.GetByPrefix(ctx, countPrefix)
	if err != nil {
		return nil, err
	}

	errorCounts, err := v.cacheClient.GetByPrefix(ctx, errorPrefix)
	if err != nil {
		return nil, err
	}

	pathCounts := make([]PathCount, 0, len(counts))
	for key, value := range counts {
		count, parseErr := strconv.ParseInt(string(value), 10, 64)
		if parseErr != nil {
			continue
		}

		suffix := strings.TrimPrefix(key, countPrefix)
		path, method := splitPathMethod(suffix)

		pathCount := PathCount{
			Path:   path,
			Method: method,
			Count:  count,
		}

		if errorValue, ok := errorCounts[errorPrefix+suffix]; ok {
			if errorCount, parseErr := strconv.ParseInt(string(errorValue), 10, 64); parseErr == nil {
				pathCount.ErrorCount = errorCount
			}
		}

		if pathCount.Count > 0 {
			pathCount.ErrorRate = float64(pathCount.ErrorCount) / float64(pathCount.Count) * 100
		}

		pathCounts = append(pathCounts, pathCount)
	}

	return pathCounts, nil
}

func (v *RealtimeView) key(parts ...string) string {
	return strings.Join(append([]string{CacheKeyPrefix}, parts...), ":")
}

func (v *RealtimeView) countKey(path, method string) string {
	return v.key("count", path, method)
}

func (v *RealtimeView) errorKey(path, method string) string {
	return v.key("error", path, method)
}

func (v *RealtimeView) statusKey(statusCode int) string {
	return v.key("status", strconv.Itoa(statusCode))
}

func (v *RealtimeView) trendKey(t time.Time) string {
	return v.key("trend", trendBucket(t))
}

// trendBucket truncates a time to its five minute bucket label
func trendBucket(t time.Time) string {
	return t.UTC().Truncate(TrendBucketMinutes * time.Minute).Format(trendBucketLayout)
}

// parseSlowCallMember decodes a slowest-apis member of the form
// path:method:status:unixMilli; the path may itself contain colons so
// the member is split from the right
func parseSlowCallMember(member cache.ScoredMember) (SlowCall, error) {
	parts := strings.Split(member.Member, ":")
	if len(parts) < 4 {
		return SlowCall{}, fmt.Errorf("malformed slowest api member %s", member.Member)
	}

	unixMilli, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return SlowCall{}, err
	}

	statusCode, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return SlowCall{}, err
	}

	return SlowCall{
		Path:           strings.Join(parts[:len(parts)-3], ":"),
		Method:         parts[len(parts)-3],
		StatusCode:     statusCode,
		ResponseTimeMs: int64(member.Score),
		ObservedAt:     time.UnixMilli(unixMilli).UTC(),
	}, nil
}

// splitPathMethod splits a counter key suffix of the form path:method,
// tolerating colons inside the path
func splitPathMethod(suffix string) (string, string) {
	idx := strings.LastIndex(suffix, ":")
	if idx < 0 {
		return suffix, ""
	}
	return suffix[:idx], suffix[idx+1:]
}
