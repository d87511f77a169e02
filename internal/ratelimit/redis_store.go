package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is an optional BucketStore backend sharing fixed-window
// counters across multiple server processes, using INCR + EXPIRE the way
// a simple distributed rate limiter typically does (SPEC_FULL §4.7-NEW).
// The in-process store remains the default; this is opt-in via
// configuration for multi-process deployments sharing one tenant pool.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a RedisStore against an already-configured client.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "grafeodb:ratelimit:"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := s.prefix + key

	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: redis expire: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// Ping verifies connectivity at startup so a misconfigured Redis backend
// fails fast instead of silently admitting every request.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
