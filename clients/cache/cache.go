package cache

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("value not found in the cache")

// ScoredMember is a member of a sorted set along with its score
type ScoredMember struct {
	Score  float64
	Member string
}

// Cache defines the structured operations the monitor service needs from
// its caching backend. Every implementation must make the capped list and
// capped sorted set operations atomic with respect to concurrent callers.
type Cache interface {
	Set(ctx context.Context, key string, data []byte, expiration time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	// Incr increments the integer value stored at key, setting expiration
	// when the key is first created, and returns the new value
	Incr(ctx context.Context, key string, expiration time.Duration) (int64, error)
	// PushCapped prepends value to the list at key and trims the list
	// to at most cap entries, keeping the most recently pushed
	PushCapped(ctx context.Context, key string, value []byte, cap int64, expiration time.Duration) error
	// Range returns list entries between start and stop inclusive,
	// most recently pushed first
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	// AddToSortedSetCapped adds member with score to the sorted set at key
	// and evicts the lowest scored members beyond cap
	AddToSortedSetCapped(ctx context.Context, key string, score float64, member string, cap int64, expiration time.Duration) error
	// SortedSetRangeByScoreDesc returns up to limit members of the sorted
	// set at key ordered by descending score
	SortedSetRangeByScoreDesc(ctx context.Context, key string, limit int64) ([]ScoredMember, error)
	// GetByPrefix returns all string values whose keys start with prefix
	GetByPrefix(ctx context.Context, prefix string) (map[string][]byte, error)
	Healthcheck(ctx context.Context) error
}
