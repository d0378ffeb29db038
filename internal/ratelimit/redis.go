package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow shares the same fixed-window quota across processes.
type RedisFixedWindow struct {
	client *redis.Client
	prefix string
	limit  int
	period time.Duration
}

// NewRedisFixedWindow builds a Redis-backed Limiter.
func NewRedisFixedWindow(client *redis.Client, prefix string, limit int, period time.Duration) *RedisFixedWindow {
	return &RedisFixedWindow{client: client, prefix: prefix, limit: limit, period: period}
}

// Allow implements Limiter.
func (r *RedisFixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := r.prefix + key

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}

	count := int(incr.Val())
	remaining := ttl.Val()
	if count == 1 || remaining < 0 {
		if err := r.client.PExpire(ctx, redisKey, r.period).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
		remaining = r.period
	}

	resetAt := time.Now().Add(remaining)
	if count > r.limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: r.limit - count, ResetAt: resetAt}, nil
}
