package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/observekit/api-monitor-service/clients/cache"
)

const (
	// CacheNamespaceStatistics holds memoized statistics summaries
	CacheNamespaceStatistics = "stats"
	// CacheNamespacePerformance holds memoized performance trends
	CacheNamespacePerformance = "performance"
	// CacheNamespaceRealtime holds the memoized realtime snapshot
	CacheNamespaceRealtime = "realtime"
)

// QueryCacheKey builds a deterministic cache key for a read query from
// its namespace and parameters
func QueryCacheKey(namespace string, params interface{}) (string, error) {
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	byteHash := crypto.Keccak256Hash(paramBytes)

	parts := []string{
		CacheKeyPrefix,
		namespace,
		byteHash.Hex(),
	}

	return strings.Join(parts, ":"), nil
}

// getCachedQueryResult checks the cache for a memoized read result,
// decoding into result on a hit. Cache errors count as misses.
func (s *MonitorService) getCachedQueryResult(ctx context.Context, key string, result interface{}) bool {
	value, err := s.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.Debug().Str("key", key).Err(err).Msg("treating cache read failure as miss")
		}
		return false
	}

	if err := json.Unmarshal(value, result); err != nil {
		s.Debug().Str("key", key).Err(err).Msg("treating undecodable cached result as miss")
		return false
	}

	return true
}

// setCachedQueryResult memoizes a read result with the provided TTL.
// Failures are logged and swallowed.
func (s *MonitorService) setCachedQueryResult(ctx context.Context, key string, result interface{}, ttl time.Duration) {
	value, err := json.Marshal(result)
	if err != nil {
		s.Debug().Str("key", key).Err(err).Msg("unable to encode result for caching")
		return
	}

	if err := s.Cache.Set(ctx, key, value, ttl); err != nil {
		s.Debug().Str("key", key).Err(err).Msg("unable to cache query result")
	}
}

// invalidateQueryCaches drops every memoized read result. Called on
// alert config writes so dashboards see rule changes promptly.
func (s *MonitorService) invalidateQueryCaches(ctx context.Context) {
	for _, namespace := range []string{CacheNamespaceStatistics, CacheNamespacePerformance, CacheNamespaceRealtime} {
		prefix := strings.Join([]string{CacheKeyPrefix, namespace}, ":")
		if err := s.Cache.DeleteByPrefix(ctx, prefix); err != nil {
			s.Debug().Str("prefix", prefix).Err(err).Msg("unable to invalidate query cache namespace")
		}
	}
}
