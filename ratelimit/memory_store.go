package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start   time.Time
	resetAt time.Time
	count   int
}

// MemoryStore keeps windows in process memory. Counters are lost on
// restart. All of Hit runs under one lock, so concurrent requests in the
// same process never overshoot the limit.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often expired windows are swept.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) { ms.cleanupInterval = interval }
}

// WithStoreClock replaces the time source used by the sweeper.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) { ms.now = now }
}

// NewMemoryStore creates an in-memory store with optional cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		windows:         make(map[string]*window),
		now:             time.Now,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}
	if ms.cleanupInterval > 0 {
		go ms.cleanup()
	}
	return ms
}

// Hit implements Store.
func (ms *MemoryStore) Hit(_ context.Context, key string, windowStart time.Time, length time.Duration, limit int) (int, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	w, ok := ms.windows[key]
	if !ok || !w.start.Equal(windowStart) {
		ms.windows[key] = &window{start: windowStart, resetAt: windowStart.Add(length), count: 1}
		return 1, limit >= 1, nil
	}

	w.count++
	if w.count > limit {
		w.count--
		return w.count, false, nil
	}
	return w.count, true, nil
}

// Count implements Store.
func (ms *MemoryStore) Count(_ context.Context, key string, windowStart time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	w, ok := ms.windows[key]
	if !ok || !w.start.Equal(windowStart) {
		return 0, nil
	}
	return w.count, nil
}

// Reset implements Store.
func (ms *MemoryStore) Reset(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.windows, key)
	return nil
}

// Len returns the number of tracked windows.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.windows)
}

func (ms *MemoryStore) cleanup() {
	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.removeExpired()
		case <-ms.stopCleanup:
			return
		}
	}
}

// removeExpired drops windows whose reset time has passed.
func (ms *MemoryStore) removeExpired() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	for key, w := range ms.windows {
		if !now.Before(w.resetAt) {
			delete(ms.windows, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (ms *MemoryStore) Close() {
	ms.closeOnce.Do(func() { close(ms.stopCleanup) })
}
