package checklog

import (
	"context"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries a Memory store retains.
const DefaultCapacity = 1000

// Memory is a bounded in-memory Store. Once full, the oldest entry is
// overwritten.
type Memory struct {
	mu      sync.RWMutex
	entries []*Entry
	next    int
	full    bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates a ring buffer holding up to capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{entries: make([]*Entry, capacity)}
}

func (m *Memory) AppendCheckLog(_ context.Context, e *Entry) error {
	cp := *e
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.next] = &cp
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *Memory) ListCheckLogs(_ context.Context, filter *QueryFilter) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.full {
		n = len(m.entries)
	}
	var out []*Entry
	for i := 1; i <= n; i++ {
		e := m.entries[(m.next-i+len(m.entries))%len(m.entries)]
		if e == nil || !filter.matches(e) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter != nil && filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) PurgeCheckLogs(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, e := range m.entries {
		if e != nil && e.CreatedAt.Before(before) {
			m.entries[i] = nil
			n++
		}
	}
	return n, nil
}
