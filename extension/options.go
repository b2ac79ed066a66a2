package extension

import (
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/grove"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/checklog"
	"github.com/xraph/bastion/middleware"
	"github.com/xraph/bastion/plugin"
	bastionredis "github.com/xraph/bastion/ratelimit/redis"
	"github.com/xraph/bastion/store"
)

// ExtOption configures the Bastion Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from db using the named driver
// ("postgres", "sqlite" or "mongo").
func WithGroveDB(db *grove.DB, driver string) ExtOption {
	return func(e *Extension) {
		e.groveDB = db
		e.config.GroveDriver = driver
	}
}

// WithRedis keeps rate limit windows in Redis so limits hold across
// replicas.
func WithRedis(client goredis.UniversalClient, opts ...bastionredis.Option) ExtOption {
	return func(e *Extension) {
		e.bastionOpts = append(e.bastionOpts, bastion.WithRateLimitStore(bastionredis.New(client, opts...)))
	}
}

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithEngineOptions adds engine-level options.
func WithEngineOptions(opts ...bastion.Option) ExtOption {
	return func(e *Extension) {
		e.bastionOpts = append(e.bastionOpts, opts...)
	}
}

// WithAuthOptions configures how API handlers authenticate callers.
func WithAuthOptions(opts ...middleware.Option) ExtOption {
	return func(e *Extension) {
		e.authOpts = append(e.authOpts, opts...)
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, x)
	}
}

// WithCheckLog records every authorization decision into s.
func WithCheckLog(s checklog.Store, opts ...checklog.Option) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, checklog.NewRecorder(s, opts...))
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
