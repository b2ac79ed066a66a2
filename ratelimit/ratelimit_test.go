package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestLimiter(clock *fakeClock) (*Limiter, *MemoryStore) {
	store := NewMemoryStore(WithCleanupInterval(0), WithStoreClock(clock.now))
	return New(store, WithClock(clock.now)), store
}

func TestLimiterWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 3, 5, 0, time.UTC)}
	l, store := newTestLimiter(clock)
	defer store.Close()

	for i := 1; i <= 10; i++ {
		res, err := l.Allow(ctx, "key_a", 10)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 10-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 10-i, res.Remaining)
		}
	}

	clock.set(time.Date(2026, 3, 1, 12, 3, 59, 0, time.UTC))
	res, err := l.Allow(ctx, "key_a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Fatal("11th request in the same window should be rejected")
	}
	if res.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", res.Remaining)
	}
	wantReset := time.Date(2026, 3, 1, 12, 4, 0, 0, time.UTC)
	if !res.ResetAt.Equal(wantReset) {
		t.Fatalf("expected reset at %v, got %v", wantReset, res.ResetAt)
	}

	// The rejection must not have consumed a ticket.
	count, _ := store.Count(ctx, "key_a", time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC))
	if count != 10 {
		t.Fatalf("rejected request leaked a ticket: count %d", count)
	}

	clock.set(wantReset)
	res, err = l.Allow(ctx, "key_a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed || res.Remaining != 9 {
		t.Fatalf("first request of the next window should restart at 1, got %+v", res)
	}
}

func TestLimiterUnlimited(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, store := newTestLimiter(clock)
	defer store.Close()

	for range 100 {
		res, err := l.Allow(ctx, "key_b", 0)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed || res.Limit != 0 {
			t.Fatalf("zero limit should never reject, got %+v", res)
		}
	}
	if store.Len() != 0 {
		t.Fatal("unlimited keys should not create windows")
	}
}

func TestLimiterStatusAndReset(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, store := newTestLimiter(clock)
	defer store.Close()

	for range 3 {
		if _, err := l.Allow(ctx, "key_c", 5); err != nil {
			t.Fatal(err)
		}
	}

	st, err := l.Status(ctx, "key_c", 5)
	if err != nil {
		t.Fatal(err)
	}
	if st.Remaining != 2 || !st.Allowed {
		t.Fatalf("unexpected status %+v", st)
	}

	// Status must not record a request.
	st, _ = l.Status(ctx, "key_c", 5)
	if st.Remaining != 2 {
		t.Fatalf("status consumed a ticket: %+v", st)
	}

	if err := l.Reset(ctx, "key_c"); err != nil {
		t.Fatal(err)
	}
	st, _ = l.Status(ctx, "key_c", 5)
	if st.Remaining != 5 {
		t.Fatalf("expected full window after reset, got %+v", st)
	}
}

func TestLimiterConcurrent(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, store := newTestLimiter(clock)
	defer store.Close()

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				res, err := l.Allow(ctx, "shared", 60)
				if err == nil && res.Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 60 {
		t.Fatalf("expected exactly 60 allowed requests, got %d", allowed.Load())
	}
}

func TestMemoryStoreRemoveExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)}
	l, store := newTestLimiter(clock)
	defer store.Close()

	_, _ = l.Allow(ctx, "old", 5)
	clock.set(time.Date(2026, 3, 1, 12, 1, 10, 0, time.UTC))
	_, _ = l.Allow(ctx, "fresh", 5)

	store.removeExpired()
	if store.Len() != 1 {
		t.Fatalf("expected only the fresh window to remain, have %d", store.Len())
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 45, 0, time.UTC)
	res := &Result{Allowed: false, ResetAt: time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)}
	if got := res.RetryAfter(now); got != 15*time.Second {
		t.Fatalf("expected 15s, got %v", got)
	}
	res.Allowed = true
	if got := res.RetryAfter(now); got != 0 {
		t.Fatalf("allowed results have no retry delay, got %v", got)
	}
}
