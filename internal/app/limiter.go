package app

import (
	"context"
	"sync"
	"time"
)

const heavySlots = 2

// heavyLimiter bounds how many readings render at once.
type heavyLimiter struct {
	slots chan struct{}
}

func newHeavyLimiter(n int) *heavyLimiter {
	if n <= 0 {
		n = 1
	}
	return &heavyLimiter{slots: make(chan struct{}, n)}
}

// run waits for a free slot and calls fn in the caller's goroutine.
func (l *heavyLimiter) run(ctx context.Context, fn func() error) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slots }()
	return fn()
}

func (l *heavyLimiter) busy() int { return len(l.slots) }

// rateLimiter drops updates from a user that come faster than one per
// interval.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[int64]time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval, last: make(map[int64]time.Time)}
}

func (r *rateLimiter) allow(id int64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.last[id]; ok && now.Sub(last) < r.interval {
		return false
	}
	r.last[id] = now
	return true
}

// cleanup forgets users not seen since now-maxAge.
func (r *rateLimiter) cleanup(now time.Time, maxAge time.Duration) int {
	cutoff := now.Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, t := range r.last {
		if t.Before(cutoff) {
			delete(r.last, id)
			removed++
		}
	}
	return removed
}
