package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error

	// Backend names the limiter for metrics and logs.
	Backend() string
}

// InProcessLimiter is a fixed-window limiter that counts requests per
// subject in memory. Each bridge replica counts on its own.
type InProcessLimiter struct {
	rpm      int
	now      func() time.Time
	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a limiter allowing rpm requests per minute
// per subject. rpm <= 0 disables limiting.
func NewInProcessLimiter(rpm int) *InProcessLimiter {
	return &InProcessLimiter{
		rpm:      rpm,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Allow checks if the request is within the rate limit.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	if l.rpm <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[identity.Subject]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[identity.Subject] = &counter{count: 1, windowAt: now}
		l.sweep(now)
		return nil
	}

	c.count++
	if c.count > l.rpm {
		return ErrTooManyRequests
	}
	return nil
}

// Backend implements RateLimiter.
func (l *InProcessLimiter) Backend() string { return "memory" }

// sweep drops expired windows so idle subjects do not accumulate.
// Caller must hold the lock.
func (l *InProcessLimiter) sweep(now time.Time) {
	for subject, c := range l.counters {
		if now.Sub(c.windowAt) >= time.Minute {
			delete(l.counters, subject)
		}
	}
}
