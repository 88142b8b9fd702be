// Package ratelimit bounds the number of requests a client can make within a
// time window.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 20
)

// Decision is the outcome of a [Limiter.Check].
type Decision struct {
	Allowed bool
	// RetryAfter is the number of whole seconds until the window resets. It is
	// only set for rejected requests and is at least 1.
	RetryAfter int
	Remaining  int
	Limit      int
}

type bucket struct {
	count       int
	windowStart time.Time
	touchedAt   time.Time
}

// Limiter counts requests per key in fixed windows that start with the first
// request of the key.
type Limiter struct {
	window      time.Duration
	maxRequests int
	now         func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type Option func(*Limiter)

func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

func WithMaxRequests(maxRequests int) Option {
	return func(l *Limiter) {
		if maxRequests > 0 {
			l.maxRequests = maxRequests
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		window:      DefaultWindow,
		maxRequests: DefaultMaxRequests,
		now:         time.Now,
		buckets:     map[string]*bucket{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) MaxRequests() int      { return l.maxRequests }

// Check records a request for key and reports whether it is allowed.
func (l *Limiter) Check(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		if !ok {
			b = &bucket{}
			l.buckets[key] = b
			bucketsActive.Set(float64(len(l.buckets)))
		}
		b.count = 1
		b.windowStart = now
		b.touchedAt = now
		return Decision{Allowed: true, Remaining: l.maxRequests - 1, Limit: l.maxRequests}
	}

	b.count++
	b.touchedAt = now
	if b.count > l.maxRequests {
		remaining := l.window - now.Sub(b.windowStart)
		retryAfter := max(1, int(math.Ceil(remaining.Seconds())))
		rejectionsTotal.Inc()
		logger.Info("rate limit exceeded", "key", key, "count", b.count, "retry_after", retryAfter)
		return Decision{Allowed: false, RetryAfter: retryAfter, Limit: l.maxRequests}
	}

	return Decision{Allowed: true, Remaining: l.maxRequests - b.count, Limit: l.maxRequests}
}

// Sweep drops buckets that have not been touched for more than twice the
// window and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.touchedAt) > 2*l.window {
			delete(l.buckets, key)
			removed++
		}
	}
	bucketsActive.Set(float64(len(l.buckets)))
	return removed
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps stale buckets every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				logger.Debug("swept rate limit buckets", "removed", removed)
			}
		}
	}
}
