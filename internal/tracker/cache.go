package tracker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// ListingCache holds the merged report listing between refreshes.
type ListingCache interface {
	Get(ctx context.Context) ([]domain.Report, bool)
	Set(ctx context.Context, items []domain.Report, ttl time.Duration)
	Invalidate(ctx context.Context)
}

// MemoryCache is a process-local ListingCache.
type MemoryCache struct {
	mu        sync.RWMutex
	items     []domain.Report
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryCache builds an empty cache; now may be nil.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now}
}

func (c *MemoryCache) Get(_ context.Context) ([]domain.Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.items == nil || !c.now().Before(c.expiresAt) {
		return nil, false
	}
	out := make([]domain.Report, len(c.items))
	copy(out, c.items)
	return out, true
}

func (c *MemoryCache) Set(_ context.Context, items []domain.Report, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make([]domain.Report, len(items))
	copy(c.items, items)
	c.expiresAt = c.now().Add(ttl)
}

func (c *MemoryCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.expiresAt = time.Time{}
}

// RedisCache stores the listing as JSON under a single key with a TTL.
// Errors degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache builds a Redis-backed ListingCache.
func NewRedisCache(client *redis.Client, key string) *RedisCache {
	return &RedisCache{client: client, key: key}
}

func (c *RedisCache) Get(ctx context.Context) ([]domain.Report, bool) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		// redis.Nil and transport errors are both treated as a miss.
		return nil, false
	}
	var items []domain.Report
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func (c *RedisCache) Set(ctx context.Context, items []domain.Report, ttl time.Duration) {
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key, raw, ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	_ = c.client.Del(ctx, c.key).Err()
}
