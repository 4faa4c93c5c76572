package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/observekit/api-monitor-service/logging"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// RedisCache is an implementation of Cache that uses Redis as the caching backend.
type RedisCache struct {
	client *redis.Client
	*logging.ServiceLogger
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(
	cfg *RedisConfig,
	logger *logging.ServiceLogger,
) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisCache{
		client:        client,
		ServiceLogger: logger,
	}, nil
}

// Set sets the value for the given key in the cache with the given expiration.
func (rc *RedisCache) Set(
	ctx context.Context,
	key string,
	value []byte,
	expiration time.Duration,
) error {
	rc.Logger.Trace().
		Str("key", key).
		Dur("expiration", expiration).
		Msg("setting value in redis")

	return rc.client.Set(ctx, key, value, expiration).Err()
}

// Get gets the value for the given key in the cache.
func (rc *RedisCache) Get(
	ctx context.Context,
	key string,
) ([]byte, error) {
	rc.Logger.Trace().
		Str("key", key).
		Msg("getting value from redis")

	val, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		rc.Logger.Trace().
			Str("key", key).
			Msgf("value not found in redis")
		return nil, ErrNotFound
	}
	if err != nil {
		rc.Logger.Error().
			Str("key", key).
			Err(err).
			Msg("error during getting value from redis")
		return nil, err
	}

	return val, nil
}

// Delete deletes the value for the given key in the cache.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	rc.Logger.Trace().
		Str("key", key).
		Msg("deleting value from redis")

	return rc.client.Del(ctx, key).Err()
}

// DeleteByPrefix deletes every key starting with prefix.
func (rc *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	rc.Logger.Trace().
		Str("prefix", prefix).
		Msg("deleting values from redis by prefix")

	iter := rc.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}

	return iter.Err()
}

// Incr increments the counter stored at key, expiring newly created counters.
func (rc *RedisCache) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	value, err := rc.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// a result of 1 means this call created the key
	if value == 1 && expiration > 0 {
		if err := rc.client.Expire(ctx, key, expiration).Err(); err != nil {
			return value, err
		}
	}

	return value, nil
}

// PushCapped pushes value onto the head of the list at key and trims
// the list to at most cap entries.
func (rc *RedisCache) PushCapped(ctx context.Context, key string, value []byte, cap int64, expiration time.Duration) error {
	pipe := rc.client.TxPipeline()

	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, cap-1)
	if expiration > 0 {
		pipe.Expire(ctx, key, expiration)
	}

	_, err := pipe.Exec(ctx)

	return err
}

// Range returns list entries between start and stop inclusive.
func (rc *RedisCache) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	values, err := rc.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}

	entries := make([][]byte, 0, len(values))
	for _, value := range values {
		entries = append(entries, []byte(value))
	}

	return entries, nil
}

// AddToSortedSetCapped adds member with score to the sorted set at key,
// evicting the lowest scored members beyond cap.
func (rc *RedisCache) AddToSortedSetCapped(ctx context.Context, key string, score float64, member string, cap int64, expiration time.Duration) error {
	pipe := rc.client.TxPipeline()

	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	// keep only the cap highest scored members
	pipe.ZRemRangeByRank(ctx, key, 0, -(cap + 1))
	if expiration > 0 {
		pipe.Expire(ctx, key, expiration)
	}

	_, err := pipe.Exec(ctx)

	return err
}

// SortedSetRangeByScoreDesc returns up to limit members ordered by descending score.
func (rc *RedisCache) SortedSetRangeByScoreDesc(ctx context.Context, key string, limit int64) ([]ScoredMember, error) {
	values, err := rc.client.ZRevRangeWithScores(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	members := make([]ScoredMember, 0, len(values))
	for _, value := range values {
		member, ok := value.Member.(string)
		if !ok {
			continue
		}
		members = append(members, ScoredMember{Score: value.Score, Member: member})
	}

	return members, nil
}

// GetByPrefix returns all string values whose keys start with prefix.
func (rc *RedisCache) GetByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	values := make(map[string][]byte)

	iter := rc.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		value, err := rc.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// expired between scan and get
			continue
		}
		if err != nil {
			return nil, err
		}

		values[key] = value
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

func (rc *RedisCache) Healthcheck(ctx context.Context) error {
	rc.Logger.Trace().Msg("redis healthcheck was called")

	_, err := rc.client.Ping(ctx).Result()
	if err != nil {
		rc.Logger.Error().
			Err(err).
			Msg("can't ping redis")
		return fmt.Errorf("error connecting to redis: %v", err)
	}

	return nil
}
