// Package extension provides a Forge extension entry point for Bastion.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/api"
	"github.com/xraph/bastion/middleware"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/store/mongo"
	"github.com/xraph/bastion/store/postgres"
	"github.com/xraph/bastion/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "bastion"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Role-based authorization with custom role inheritance and API credentials"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Bastion as a Forge extension.
type Extension struct {
	config      Config
	eng         *bastion.Engine
	apiHandler  *api.API
	logger      *slog.Logger
	store       store.Store
	groveDB     *grove.DB
	bastionOpts []bastion.Option
	authOpts    []middleware.Option
	plugins     []plugin.Plugin
}

// New creates a Bastion Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Bastion engine.
func (e *Extension) Engine() *bastion.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the engine,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*bastion.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("bastion: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	s, err := e.resolveStore(fapp)
	if err != nil {
		return err
	}

	opts := make([]bastion.Option, 0, len(e.bastionOpts)+len(e.plugins)+3)
	opts = append(opts,
		bastion.WithLogger(logger),
		bastion.WithConfig(e.config.engineConfig()),
		bastion.WithStore(s),
	)
	// User-provided options may override the store and config.
	opts = append(opts, e.bastionOpts...)
	for _, x := range e.plugins {
		opts = append(opts, bastion.WithPlugin(x))
	}

	eng, err := bastion.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("bastion: create engine: %w", err)
	}
	e.eng = eng

	router := fapp.Router()
	e.apiHandler = api.New(eng, router, e.authOpts...)

	if !e.config.DisableRoutes {
		if e.config.BasePath != "" {
			router = router.Group(e.config.BasePath)
		}
		if err := e.apiHandler.RegisterRoutes(router); err != nil {
			return fmt.Errorf("bastion: register routes: %w", err)
		}
	}

	return nil
}

// resolveStore picks, in order: an explicit store, a grove-backed store for
// the configured driver, a store.Store from the DI container.
func (e *Extension) resolveStore(fapp forge.App) (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}

	if e.config.GroveDriver != "" {
		db := e.groveDB
		if db == nil {
			injected, err := forge.Inject[*grove.DB](fapp.Container())
			if err != nil {
				return nil, fmt.Errorf("bastion: resolve grove database: %w", err)
			}
			db = injected
		}
		return newGroveStore(e.config.GroveDriver, db)
	}

	s, err := forge.Inject[store.Store](fapp.Container())
	if err != nil {
		return nil, fmt.Errorf("bastion: no store configured: %w", err)
	}
	return s, nil
}

func newGroveStore(driver string, db *grove.DB) (store.Store, error) {
	if db == nil {
		return nil, errors.New("bastion: grove database is nil")
	}
	switch driver {
	case "postgres", "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo", "mongodb":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("bastion: unknown grove driver %q", driver)
	}
}

// Start begins the bastion engine and runs migrations if enabled.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("bastion: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.eng.Store().Migrate(ctx); err != nil {
			return fmt.Errorf("bastion: migration failed: %w", err)
		}
	}

	return e.eng.Start(ctx)
}

// Stop gracefully shuts down the bastion engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("bastion: extension not initialized")
	}
	return e.eng.Store().Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all bastion API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
