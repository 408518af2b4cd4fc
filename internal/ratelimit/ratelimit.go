// Package ratelimit implements the per-source politeness gate used by the
// retriever adapters. Each source key gets a minimum inter-request interval;
// Acquire blocks until that much time has passed since the previous
// successful Acquire on the same key, or until the context is canceled.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"thorlearn/internal/logging"
)

// Limiter gates requests per source key.
type Limiter struct {
	mu          sync.Mutex
	defaultMin  time.Duration
	perSource   map[string]time.Duration
	lastAcquire map[string]time.Time

	// now is injectable for tests.
	now func() time.Time
}

// New creates a limiter with the given default minimum interval.
func New(defaultMin time.Duration) *Limiter {
	if defaultMin <= 0 {
		defaultMin = 500 * time.Millisecond
	}
	return &Limiter{
		defaultMin:  defaultMin,
		perSource:   make(map[string]time.Duration),
		lastAcquire: make(map[string]time.Time),
		now:         time.Now,
	}
}

// SetInterval overrides the minimum interval for a specific source key.
func (l *Limiter) SetInterval(key string, min time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if min > 0 {
		l.perSource[key] = min
	}
}

// Interval returns the effective minimum interval for a key.
func (l *Limiter) Interval(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.perSource[key]; ok {
		return d
	}
	return l.defaultMin
}

// Acquire blocks until the key's interval has elapsed since the previous
// successful acquire, then records the acquisition. Returns ctx.Err() if the
// context is canceled while waiting. Concurrent acquirers on the same key are
// serialized: each one pushes the next slot out by one interval.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		now := l.now()
		min := l.defaultMin
		if d, ok := l.perSource[key]; ok {
			min = d
		}
		last, seen := l.lastAcquire[key]
		if !seen || now.Sub(last) >= min {
			l.lastAcquire[key] = now
			l.mu.Unlock()
			return nil
		}
		wait := min - now.Sub(last)
		l.mu.Unlock()

		logging.RateLimitDebug("waiting %v for source %s", wait, key)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// Re-check under the lock; another goroutine may have taken
			// the slot while we slept.
		}
	}
}
