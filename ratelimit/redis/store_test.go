package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/bastion/ratelimit"
)

func setup(t *testing.T, now time.Time) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(now)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestRedisStoreWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 3, 5, 0, time.UTC)
	store, mr := setup(t, now)

	clock := now
	l := ratelimit.New(store, ratelimit.WithClock(func() time.Time { return clock }))

	for i := 1; i <= 10; i++ {
		res, err := l.Allow(ctx, "key_a", 10)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := l.Allow(ctx, "key_a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("11th request should be rejected, got %+v", res)
	}

	key := "bastion:rl:key_a:" + "1772366580"
	got, err := mr.Get(key)
	if err != nil {
		t.Fatalf("expected counter key %s: %v", key, err)
	}
	if got != "10" {
		t.Fatalf("rejected request should be refunded, counter is %s", got)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("counter key should expire, ttl %v", ttl)
	}

	clock = time.Date(2026, 3, 1, 12, 4, 0, 0, time.UTC)
	res, err = l.Allow(ctx, "key_a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed || res.Remaining != 9 {
		t.Fatalf("next window should start at 1, got %+v", res)
	}
}

func TestRedisStoreCountAndReset(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _ := setup(t, start)

	n, err := store.Count(ctx, "key_b", start)
	if err != nil || n != 0 {
		t.Fatalf("missing window should count 0, got %d, %v", n, err)
	}

	for range 3 {
		if _, _, err := store.Hit(ctx, "key_b", start, time.Minute, 5); err != nil {
			t.Fatal(err)
		}
	}
	n, _ = store.Count(ctx, "key_b", start)
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}

	if err := store.Reset(ctx, "key_b"); err != nil {
		t.Fatal(err)
	}
	n, _ = store.Count(ctx, "key_b", start)
	if n != 0 {
		t.Fatalf("expected 0 after reset, got %d", n)
	}
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mr := miniredis.RunT(t)
	mr.SetTime(start)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := New(client, WithKeyPrefix("tenant1:rl"))
	if _, _, err := store.Hit(ctx, "key_c", start, time.Minute, 5); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("tenant1:rl:key_c:" + "1772366400") {
		t.Fatalf("expected prefixed key, have %v", mr.Keys())
	}
}
