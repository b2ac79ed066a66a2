// Package ratelimit implements the per-credential fixed-window request
// limiter. Windows are aligned to wall-clock boundaries of the window
// length (one minute by default): every request in 12:03:00-12:03:59
// counts against the same window.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// DefaultWindow is the fixed window length.
const DefaultWindow = time.Minute

// Result is the outcome of a single limiter check. A Limit of zero means
// the key is unlimited; callers should not emit throttling headers for it.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RetryAfter returns how long to wait before the window resets.
// Returns 0 if the request was allowed.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || now.After(r.ResetAt) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Store holds window counters. Hit starts a new window with count 1 when
// none exists for windowStart; otherwise it takes a ticket, compares the
// count to limit, and refunds the ticket when over. It returns the count
// after any refund.
type Store interface {
	Hit(ctx context.Context, key string, windowStart time.Time, window time.Duration, limit int) (count int, allowed bool, err error)
	Count(ctx context.Context, key string, windowStart time.Time) (int, error)
	Reset(ctx context.Context, key string) error
}

// Limiter applies fixed-window limits on top of a Store.
type Limiter struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter. A nil store defaults to an in-memory store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore(WithStoreClock(l.now))
	}
	return l
}

// Allow records one request for key against limit requests per window.
// A limit of zero or less never rejects.
func (l *Limiter) Allow(ctx context.Context, key string, limit int) (*Result, error) {
	start, resetAt := l.bounds()
	if limit <= 0 {
		return &Result{Allowed: true, ResetAt: resetAt}, nil
	}

	count, allowed, err := l.store.Hit(ctx, key, start, l.window, limit)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: hit %q: %w", key, err)
	}

	return &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}, nil
}

// Status reports the current window without recording a request.
func (l *Limiter) Status(ctx context.Context, key string, limit int) (*Result, error) {
	start, resetAt := l.bounds()
	if limit <= 0 {
		return &Result{Allowed: true, ResetAt: resetAt}, nil
	}

	count, err := l.store.Count(ctx, key, start)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: status %q: %w", key, err)
	}

	return &Result{
		Allowed:   count < limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the counters for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("ratelimit: reset %q: %w", key, err)
	}
	return nil
}

// Close releases the store's background resources, if it has any.
func (l *Limiter) Close() {
	if c, ok := l.store.(interface{ Close() }); ok {
		c.Close()
	}
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

func (l *Limiter) bounds() (start, resetAt time.Time) {
	start = l.now().Truncate(l.window)
	return start, start.Add(l.window)
}
