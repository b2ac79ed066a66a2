package bastion

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/ratelimit"
	"github.com/xraph/bastion/resolver"
	"github.com/xraph/bastion/store"
)

// RoleLookup returns the role a credential owner acts under. An empty
// result falls back to the api-default base role.
type RoleLookup func(ctx context.Context, ownerID string) (string, error)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithCache replaces the in-memory resolved permission cache.
func WithCache(c resolver.Cache) Option { return func(e *Engine) { e.cache = c } }

// WithRateLimitStore sets the window store behind the credential limiter,
// for example a Redis store shared across instances.
func WithRateLimitStore(s ratelimit.Store) Option { return func(e *Engine) { e.rateStore = s } }

// WithOwnerRole sets how credential principals get their role. Without it
// every credential acts as api-default plus its explicit permissions.
func WithOwnerRole(fn RoleLookup) Option { return func(e *Engine) { e.ownerRole = fn } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithPlugin registers a plugin with the engine.
func WithPlugin(x plugin.Plugin) Option {
	return func(e *Engine) { e.pending = append(e.pending, x) }
}
