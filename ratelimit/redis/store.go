// Package redis provides a Redis-backed ratelimit.Store so several
// processes can share credential windows.
//
// Each window is a single counter key, "bastion:rl:<key>:<window-start>",
// that expires shortly after the window closes. Hit increments the counter
// and decrements it again when the limit is exceeded. Between those two
// commands another instance may observe the inflated count, so under
// contention a window can reject up to (instances - 1) requests early. It
// never admits more than limit requests.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/bastion/ratelimit"
)

// DefaultKeyPrefix namespaces every counter key.
const DefaultKeyPrefix = "bastion:rl"

// Compile-time interface check.
var _ ratelimit.Store = (*Store)(nil)

// Store implements ratelimit.Store on a go-redis client.
type Store struct {
	client goredis.UniversalClient
	prefix string
	grace  time.Duration
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithGrace sets how long a counter outlives its window.
func WithGrace(d time.Duration) Option {
	return func(s *Store) { s.grace = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store on an existing client.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultKeyPrefix,
		grace:  5 * time.Second,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect parses a redis:// URL, pings the server and returns a client.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit/redis: parse url: %w", err)
	}
	client := goredis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit/redis: ping: %w", err)
	}
	return client, nil
}

// Hit implements ratelimit.Store.
func (s *Store) Hit(ctx context.Context, key string, windowStart time.Time, window time.Duration, limit int) (int, bool, error) {
	k := s.windowKey(key, windowStart)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireAt(ctx, k, windowStart.Add(window).Add(s.grace))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, fmt.Errorf("ratelimit/redis: incr: %w", err)
	}

	count := int(incr.Val())
	if count <= limit {
		return count, true, nil
	}

	if err := s.client.Decr(ctx, k).Err(); err != nil {
		// The ticket stays taken; the window closes early for this key.
		s.logger.Warn("bastion: rate limit refund failed",
			slog.String("key", k),
			slog.String("error", err.Error()),
		)
		return count, false, nil
	}
	return count - 1, false, nil
}

// Count implements ratelimit.Store.
func (s *Store) Count(ctx context.Context, key string, windowStart time.Time) (int, error) {
	n, err := s.client.Get(ctx, s.windowKey(key, windowStart)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit/redis: get: %w", err)
	}
	return n, nil
}

// Reset implements ratelimit.Store. It removes every window of key.
func (s *Store) Reset(ctx context.Context, key string) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":"+key+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("ratelimit/redis: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("ratelimit/redis: del: %w", err)
	}
	return nil
}

func (s *Store) windowKey(key string, windowStart time.Time) string {
	return s.prefix + ":" + key + ":" + strconv.FormatInt(windowStart.Unix(), 10)
}
