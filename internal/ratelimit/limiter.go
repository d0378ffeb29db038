// Package ratelimit enforces per-actor fixed-window quotas.
//
// The window starts at an actor's first accepted submission and resets once
// it expires. A burst straddling a window boundary can therefore exceed the
// nominal quota; that approximation is accepted.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter consumes one unit of quota for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is an in-process Limiter. It is only correct for a single
// process and forgets every counter on restart.
type FixedWindow struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	now     func() time.Time
	windows map[string]*window
}

// Option customizes a FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *FixedWindow) { f.now = now }
}

// NewFixedWindow allows limit submissions per key within period.
func NewFixedWindow(limit int, period time.Duration, opts ...Option) *FixedWindow {
	f := &FixedWindow{
		limit:   limit,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Allow implements Limiter.
func (f *FixedWindow) Allow(_ context.Context, key string) (Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	w, ok := f.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(f.period)}
		f.windows[key] = w
	}
	if w.count >= f.limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: f.limit - w.count, ResetAt: w.resetAt}, nil
}

// Prune drops expired windows so idle actors do not accumulate.
func (f *FixedWindow) Prune() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for key, w := range f.windows {
		if !now.Before(w.resetAt) {
			delete(f.windows, key)
		}
	}
}
