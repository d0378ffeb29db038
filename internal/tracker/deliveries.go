package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryHeader carries the sender's unique id for one webhook delivery.
const DeliveryHeader = "X-Tracker-Delivery"

// DeliveryLog remembers webhook delivery ids so retried deliveries are
// acknowledged without being processed twice.
type DeliveryLog interface {
	// FirstSeen records id and reports whether it was new within the window.
	FirstSeen(ctx context.Context, id string) (bool, error)
}

// MemoryDeliveryLog is a process-local DeliveryLog.
type MemoryDeliveryLog struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seen   map[string]time.Time
}

// NewMemoryDeliveryLog keeps ids for window; now may be nil.
func NewMemoryDeliveryLog(window time.Duration, now func() time.Time) *MemoryDeliveryLog {
	if now == nil {
		now = time.Now
	}
	return &MemoryDeliveryLog{
		window: window,
		now:    now,
		seen:   make(map[string]time.Time),
	}
}

func (l *MemoryDeliveryLog) FirstSeen(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if at, ok := l.seen[id]; ok && now.Sub(at) < l.window {
		return false, nil
	}
	l.seen[id] = now
	return true, nil
}

// Prune forgets ids older than the window.
func (l *MemoryDeliveryLog) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, at := range l.seen {
		if now.Sub(at) >= l.window {
			delete(l.seen, id)
		}
	}
}

// RedisDeliveryLog shares delivery ids between processes with SET NX.
type RedisDeliveryLog struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func NewRedisDeliveryLog(client *redis.Client, prefix string, window time.Duration) *RedisDeliveryLog {
	return &RedisDeliveryLog{client: client, prefix: prefix, window: window}
}

func (l *RedisDeliveryLog) FirstSeen(ctx context.Context, id string) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+id, 1, l.window).Result()
}
