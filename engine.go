package bastion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/bastion/cache"
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/customrole"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/ratelimit"
	"github.com/xraph/bastion/resolver"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Engine is the authorization gate. It wires the resolver, the custom role
// manager, the credential service and the rate limiter over one store and
// fires plugin hooks around every check.
type Engine struct {
	store     store.Store
	cache     resolver.Cache
	rateStore ratelimit.Store
	ownerRole RoleLookup
	logger    *slog.Logger
	config    Config
	now       func() time.Time
	pending   []plugin.Plugin

	plugins     *plugin.Registry
	resolver    *resolver.Resolver
	roles       *customrole.Manager
	limiter     *ratelimit.Limiter
	credentials *credential.Service

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates a new Bastion engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("bastion: store is required")
	}
	e.config = e.config.withDefaults()

	e.plugins = plugin.NewRegistry(e.logger)
	for _, p := range e.pending {
		e.plugins.Register(p)
	}

	if e.cache == nil {
		e.cache = cache.NewMemory(
			cache.WithTTL(e.config.CacheTTL),
			cache.WithMaxSize(e.config.CacheMaxSize),
			cache.WithClock(e.now),
		)
	}
	e.resolver = resolver.New(
		resolver.WithCache(e.cache),
		resolver.WithMaxDepth(e.config.MaxInheritanceDepth),
		resolver.WithLogger(e.logger),
	)
	e.roles = customrole.New(e.resolver,
		customrole.WithStore(e.store),
		customrole.WithPlugins(e.plugins),
		customrole.WithLogger(e.logger),
		customrole.WithClock(e.now),
	)

	if e.rateStore == nil {
		e.rateStore = ratelimit.NewMemoryStore(ratelimit.WithStoreClock(e.now))
	}
	e.limiter = ratelimit.New(e.rateStore,
		ratelimit.WithWindow(e.config.RateWindow),
		ratelimit.WithClock(e.now),
	)
	e.credentials = credential.NewService(e.store,
		credential.WithLimiter(e.limiter),
		credential.WithHooks(e.plugins),
		credential.WithLogger(e.logger),
		credential.WithClock(e.now),
		credential.WithSecretPrefix(e.config.SecretPrefix),
		credential.WithDisplayPrefixLength(e.config.DisplayPrefixLength),
		credential.WithDefaultRateLimit(e.config.defaultRateLimit()),
	)
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Resolver returns the permission resolver.
func (e *Engine) Resolver() *resolver.Resolver { return e.resolver }

// Roles returns the custom role manager.
func (e *Engine) Roles() *customrole.Manager { return e.roles }

// Credentials returns the credential service.
func (e *Engine) Credentials() *credential.Service { return e.credentials }

// Limiter returns the credential rate limiter.
func (e *Engine) Limiter() *ratelimit.Limiter { return e.limiter }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// Start loads persisted custom roles and, when CleanupInterval is set,
// starts the expired credential sweep.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if err := e.roles.Start(ctx); err != nil {
		return fmt.Errorf("bastion start: %w", err)
	}

	if e.config.CleanupInterval > 0 {
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancel = cancel
		e.done = make(chan struct{})
		go e.cleanupLoop(loopCtx, e.config.CleanupInterval, e.done)
	}

	e.started = true
	return nil
}

// Stop halts the sweep, notifies Shutdown plugins and releases the limiter.
// The store is left open for its owner to close.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}

	if e.cancel != nil {
		e.cancel()
		select {
		case <-e.done:
		case <-ctx.Done():
		}
		e.cancel, e.done = nil, nil
	}

	err := e.roles.Stop(ctx)
	e.plugins.EmitShutdown(ctx)
	e.limiter.Close()
	e.started = false
	return err
}

func (e *Engine) cleanupLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.credentials.CleanupExpired(ctx)
			if err != nil {
				e.logger.Warn("bastion: expired credential sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				e.logger.Info("bastion: deactivated expired credentials",
					slog.Int64("count", n),
				)
			}
		}
	}
}

// Check performs an authorization check. This is the hot path.
//
// The permission is granted when the principal's resolved role chain grants
// it, or, for credential principals only, when the credential's explicit
// permissions grant it.
func (e *Engine) Check(ctx context.Context, req *CheckRequest) (*CheckResult, error) {
	if req == nil {
		return nil, errors.New("bastion check: nil request")
	}
	start := time.Now()

	e.plugins.EmitBeforeCheck(ctx, req)

	result := e.evaluate(ctx, req)
	result.EvalTimeNs = time.Since(start).Nanoseconds()

	e.plugins.EmitAfterCheck(ctx, req, result)
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, req *CheckRequest) *CheckResult {
	p := req.Principal
	if p.Kind != PrincipalSession && p.Kind != PrincipalCredential {
		return &CheckResult{Decision: DecisionDenyUnauthenticated, Reason: "no principal"}
	}

	perm, err := permission.Parse(string(req.Permission))
	if err != nil {
		return &CheckResult{Decision: DecisionDenyInvalidPermission, Reason: err.Error()}
	}
	if req.Scope != "" && !permission.ValidScope(req.Scope) {
		return &CheckResult{Decision: DecisionDenyInvalidPermission, Reason: fmt.Sprintf("invalid scope %q", req.Scope)}
	}

	roleName := principalRole(p)
	if e.resolver.HasPermission(ctx, roleName, perm, req.Scope) {
		return &CheckResult{
			Allowed:   true,
			Decision:  DecisionAllow,
			MatchedBy: []MatchInfo{{Source: "role", Detail: "role " + roleName + " grants " + string(perm)}},
		}
	}

	if p.IsCredential() && permission.NewSet(p.Permissions...).Grants(perm, req.Scope) {
		return &CheckResult{
			Allowed:   true,
			Decision:  DecisionAllow,
			MatchedBy: []MatchInfo{{Source: "credential", Detail: "credential " + p.ID + " grants " + string(perm)}},
		}
	}

	return &CheckResult{Decision: DecisionDenyNoPerms, Reason: "no role or credential grants " + string(perm)}
}

// Enforce returns an error wrapping ErrAccessDenied if the check is denied.
func (e *Engine) Enforce(ctx context.Context, req *CheckRequest) error {
	result, err := e.Check(ctx, req)
	if err != nil {
		return fmt.Errorf("bastion check: %w", err)
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %s: %s", ErrAccessDenied, result.Decision, result.Reason)
	}
	return nil
}

// Can is a shorthand for a simple authorization check.
func (e *Engine) Can(ctx context.Context, p Principal, perm permission.Permission, scope string) bool {
	result, err := e.Check(ctx, &CheckRequest{Principal: p, Permission: perm, Scope: scope})
	return err == nil && result.Allowed
}

// Authenticate validates a credential secret and maps it to a credential
// principal. Failed validations are reported in the result; the error is
// non-nil only for infrastructure failures.
func (e *Engine) Authenticate(ctx context.Context, secret string) (*AuthResult, error) {
	v, err := e.credentials.Validate(ctx, secret)
	if err != nil {
		return nil, fmt.Errorf("bastion authenticate: %w", err)
	}
	if !v.Valid {
		return &AuthResult{Decision: decisionFor(v.Reason), Validation: v}, nil
	}

	c := v.Credential
	roleName := string(role.APIDefault)
	if e.ownerRole != nil {
		r, err := e.ownerRole(ctx, c.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("bastion authenticate: owner role: %w", err)
		}
		if r != "" {
			roleName = r
		}
	}

	return &AuthResult{
		Principal: &Principal{
			Kind:        PrincipalCredential,
			ID:          c.ID.String(),
			OwnerID:     c.OwnerID,
			Role:        roleName,
			Permissions: slices.Clone(c.Permissions),
		},
		Decision:   DecisionAllow,
		Validation: v,
	}, nil
}

// Permissions returns the effective permission set of p: its resolved role
// plus, for credentials, the explicit grants.
func (e *Engine) Permissions(ctx context.Context, p Principal) permission.Set {
	out := e.resolver.Resolve(ctx, principalRole(p)).Clone()
	if p.IsCredential() {
		out.Union(permission.NewSet(p.Permissions...))
	}
	return out
}

func principalRole(p Principal) string {
	if p.Role == "" && p.IsCredential() {
		return string(role.APIDefault)
	}
	return p.Role
}
