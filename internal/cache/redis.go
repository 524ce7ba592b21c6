package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store, backed by a single multiplexed Redis
// connection per process; all uses are atomic single-command operations.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttlSeconds int) error {
	if err := s.rdb.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetBlacklist(ctx context.Context, jti string, ttlSeconds int) error {
	return s.SetWithTTL(ctx, blacklistKey(jti), "1", ttlSeconds)
}

func (s *RedisStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return s.Exists(ctx, blacklistKey(jti))
}

func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: health check: %w", err)
	}
	return nil
}

// SetNX sets key to value with a TTL only if it does not already exist,
// returning true if the set happened. Two concurrent requests with the
// same nonce are mutually exclusive via this set-if-absent primitive.
func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttlSeconds int) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Result()
	if err != nil {
		return false, fmt.Errorf("cache: setnx %q: %w", key, err)
	}
	return ok, nil
}
