// Package cache provides caching implementations for resolved role
// permission sets.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/bastion/permission"
)

// Memory is an in-memory cache keyed by role name with TTL-based expiration.
// Entries are evicted lazily on Get and when the cache reaches its size bound.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	perms    permission.Set
	storedAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a copy of the cached permission set for roleName.
func (m *Memory) Get(_ context.Context, roleName string) (permission.Set, bool) {
	m.mu.RLock()
	e, ok := m.entries[roleName]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.storedAt) >= m.ttl {
		m.mu.Lock()
		if cur, ok := m.entries[roleName]; ok && cur == e {
			delete(m.entries, roleName)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.perms.Clone(), true
}

// Set stores the resolved permission set for roleName.
func (m *Memory) Set(_ context.Context, roleName string, perms permission.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[roleName]; !exists && len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			m.evictOldest()
		}
	}

	m.entries[roleName] = &entry{
		perms:    perms.Clone(),
		storedAt: m.now(),
	}
}

// Invalidate removes the entries for the given role names.
func (m *Memory) Invalidate(_ context.Context, roleNames ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range roleNames {
		delete(m.entries, name)
	}
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
}

// Len returns the number of entries, including not yet evicted stale ones.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := m.now()
	for k, e := range m.entries {
		if now.Sub(e.storedAt) >= m.ttl {
			delete(m.entries, k)
		}
	}
}

// evictOldest removes the entry stored first. Must hold write lock.
func (m *Memory) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range m.entries {
		if !found || e.storedAt.Before(oldest) {
			oldestKey, oldest, found = k, e.storedAt, true
		}
	}
	if found {
		delete(m.entries, oldestKey)
	}
}
