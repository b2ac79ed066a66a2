package cache

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/bastion/permission"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	if _, ok := c.Get(ctx, "editor"); ok {
		t.Fatal("expected cache miss")
	}

	c.Set(ctx, "editor", permission.NewSet(permission.ContentRead))
	got, ok := c.Get(ctx, "editor")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Contains(permission.ContentRead) {
		t.Fatal("expected content:read in cached set")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewMemory(WithTTL(5*time.Minute), WithClock(clock.now))

	c.Set(ctx, "viewer", permission.NewSet(permission.MediaRead))

	clock.advance(4 * time.Minute)
	if _, ok := c.Get(ctx, "viewer"); !ok {
		t.Fatal("expected hit before TTL")
	}

	clock.advance(time.Minute)
	if _, ok := c.Get(ctx, "viewer"); ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("stale entry should be evicted on Get, have %d entries", c.Len())
	}
}

func TestMemoryCacheReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "viewer", permission.NewSet(permission.MediaRead))
	got, _ := c.Get(ctx, "viewer")
	got.Add(permission.Wildcard)

	again, _ := c.Get(ctx, "viewer")
	if again.Contains(permission.Wildcard) {
		t.Fatal("callers must not be able to mutate cached sets")
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "a", permission.NewSet())
	c.Set(ctx, "b", permission.NewSet())
	c.Set(ctx, "c", permission.NewSet())

	c.Invalidate(ctx, "a", "b")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("a should be invalidated")
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("b should be invalidated")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Fatal("c should survive")
	}

	c.Clear(ctx)
	if c.Len() != 0 {
		t.Fatal("Clear should remove everything")
	}
}

func TestMemoryCacheMaxSize(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewMemory(WithMaxSize(2), WithClock(clock.now))

	c.Set(ctx, "first", permission.NewSet())
	clock.advance(time.Second)
	c.Set(ctx, "second", permission.NewSet())
	clock.advance(time.Second)
	c.Set(ctx, "third", permission.NewSet())

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get(ctx, "first"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
}
