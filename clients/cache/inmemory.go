package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// InMemoryCache is a mutex guarded implementation of Cache used by tests
// and by deployments that run with caching disabled. Expired entries are
// dropped lazily on read.
type InMemoryCache struct {
	strings map[string]stringItem
	lists   map[string]listItem
	zsets   map[string]zsetItem
	mutex   sync.RWMutex
}

var _ Cache = (*InMemoryCache)(nil)

type stringItem struct {
	data       []byte
	expiration time.Time
}

type listItem struct {
	entries    [][]byte
	expiration time.Time
}

type zsetItem struct {
	members    []ScoredMember
	expiration time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		strings: make(map[string]stringItem),
		lists:   make(map[string]listItem),
		zsets:   make(map[string]zsetItem),
	}
}

// expired reports whether an expiration deadline has passed,
// treating the zero time as no expiration
func expired(expiration time.Time) bool {
	return !expiration.IsZero() && time.Now().After(expiration)
}

func deadline(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Time{}
	}
	return time.Now().Add(expiration)
}

func (c *InMemoryCache) Set(ctx context.Context, key string, data []byte, expiration time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.strings[key] = stringItem{
		data:       data,
		expiration: deadline(expiration),
	}

	return nil
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, ok := c.strings[key]
	if !ok || expired(item.expiration) {
		return nil, ErrNotFound
	}

	return item.data, nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.strings, key)
	delete(c.lists, key)
	delete(c.zsets, key)

	return nil
}

func (c *InMemoryCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key := range c.strings {
		if strings.HasPrefix(key, prefix) {
			delete(c.strings, key)
		}
	}
	for key := range c.lists {
		if strings.HasPrefix(key, prefix) {
			delete(c.lists, key)
		}
	}
	for key := range c.zsets {
		if strings.HasPrefix(key, prefix) {
			delete(c.zsets, key)
		}
	}

	return nil
}

func (c *InMemoryCache) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var current int64

	item, ok := c.strings[key]
	if ok && !expired(item.expiration) {
		parsed, err := strconv.ParseInt(string(item.data), 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	} else {
		item = stringItem{expiration: deadline(expiration)}
	}

	current++
	item.data = []byte(strconv.FormatInt(current, 10))
	c.strings[key] = item

	return current, nil
}

func (c *InMemoryCache) PushCapped(ctx context.Context, key string, value []byte, cap int64, expiration time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, ok := c.lists[key]
	if !ok || expired(item.expiration) {
		item = listItem{}
	}

	item.entries = append([][]byte{value}, item.entries...)
	if int64(len(item.entries)) > cap {
		item.entries = item.entries[:cap]
	}
	item.expiration = deadline(expiration)
	c.lists[key] = item

	return nil
}

func (c *InMemoryCache) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, ok := c.lists[key]
	if !ok || expired(item.expiration) {
		return nil, nil
	}

	length := int64(len(item.entries))
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= length {
		stop = length - 1
	}
	if start > stop {
		return nil, nil
	}

	entries := make([][]byte, 0, stop-start+1)
	for _, entry := range item.entries[start : stop+1] {
		entries = append(entries, entry)
	}

	return entries, nil
}

func (c *InMemoryCache) AddToSortedSetCapped(ctx context.Context, key string, score float64, member string, cap int64, expiration time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, ok := c.zsets[key]
	if !ok || expired(item.expiration) {
		item = zsetItem{}
	}

	// replace the member's score if it is already present
	members := make([]ScoredMember, 0, len(item.members)+1)
	for _, existing := range item.members {
		if existing.Member != member {
			members = append(members, existing)
		}
	}
	members = append(members, ScoredMember{Score: score, Member: member})

	sort.Slice(members, func(i, j int) bool {
		return members[i].Score > members[j].Score
	})

	if int64(len(members)) > cap {
		members = members[:cap]
	}

	item.members = members
	item.expiration = deadline(expiration)
	c.zsets[key] = item

	return nil
}

func (c *InMemoryCache) SortedSetRangeByScoreDesc(ctx context.Context, key string, limit int64) ([]ScoredMember, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, ok := c.zsets[key]
	if !ok || expired(item.expiration) {
		return nil, nil
	}

	if limit < 0 || limit > int64(len(item.members)) {
		limit = int64(len(item.members))
	}

	members := make([]ScoredMember, limit)
	copy(members, item.members[:limit])

	return members, nil
}

func (c *InMemoryCache) GetByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	values := make(map[string][]byte)
	for key, item := range c.strings {
		if strings.HasPrefix(key, prefix) && !expired(item.expiration) {
			values[key] = item.data
		}
	}

	return values, nil
}

func (c *InMemoryCache) Healthcheck(ctx context.Context) error {
	return nil
}
