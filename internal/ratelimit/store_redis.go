package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass/pkg/requestcontext"
)

// RedisClient is the slice of go-redis this store needs.
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis is a fixed-window counter store shared across instances. Window
// membership is encoded into the key, so every instance deciding from the
// same clock counts against the same bucket.
type Redis struct {
	client RedisClient
	prefix string
}

// NewRedis creates a Redis-backed fixed-window store.
func NewRedis(client RedisClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{client: client, prefix: prefix}
}

// Allow counts the request against the key's current window.
func (s *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := requestcontext.Now(ctx)
	start := windowStart(now, window)
	bucketKey := s.bucketKey(key, start)

	count, err := s.client.Incr(ctx, bucketKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimit incr %s: %w", bucketKey, err)
	}
	if count == 1 {
		// First hit owns the expiry. One extra window of slack keeps a
		// bucket readable until no request can land in it anymore.
		if err := s.client.Expire(ctx, bucketKey, 2*window).Err(); err != nil {
			return nil, fmt.Errorf("ratelimit expire %s: %w", bucketKey, err)
		}
	}

	return buildResult(now, start, window, limit, int(count)), nil
}

// Reset clears the counter for a key's current window. Older buckets expire
// on their own.
func (s *Redis) Reset(ctx context.Context, key string, window time.Duration) error {
	now := requestcontext.Now(ctx)
	if err := s.client.Del(ctx, s.bucketKey(key, windowStart(now, window))).Err(); err != nil {
		return fmt.Errorf("ratelimit reset %s: %w", key, err)
	}
	return nil
}

func (s *Redis) bucketKey(key string, start time.Time) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, key, start.Unix())
}
