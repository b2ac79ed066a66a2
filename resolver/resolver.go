// Package resolver computes effective permission sets for base and custom
// roles. It owns the in-process registry of custom role definitions, walks
// inheritance chains with cycle and depth detection, applies permanent
// denials, and caches resolved sets per role name.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xraph/bastion/cache"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

// DefaultMaxDepth is the maximum number of inheritsFrom hops.
const DefaultMaxDepth = 5

// DefaultCacheTTL is the lifetime of a cached permission set.
const DefaultCacheTTL = 5 * time.Minute

// Cache stores resolved permission sets by role name.
type Cache interface {
	Get(ctx context.Context, roleName string) (permission.Set, bool)
	Set(ctx context.Context, roleName string, perms permission.Set)
	Invalidate(ctx context.Context, roleNames ...string)
	Clear(ctx context.Context)
}

// Compile-time interface check.
var _ Cache = (*cache.Memory)(nil)

// Resolver is safe for concurrent use.
type Resolver struct {
	mu       sync.RWMutex
	defs     map[string]*role.Definition
	gen      uint64
	cache    Cache
	maxDepth int
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithMaxDepth sets the inheritance hop limit.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver with no custom roles registered.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		defs:     make(map[string]*role.Definition),
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.NewMemory(cache.WithTTL(DefaultCacheTTL))
	}
	return r
}

// Resolve returns the effective permission set of roleName. Invalid chains
// fail closed: a base role falls back to its static permissions and every
// other role resolves to the empty set.
func (r *Resolver) Resolve(ctx context.Context, roleName string) permission.Set {
	if perms, ok := r.cache.Get(ctx, roleName); ok {
		return perms
	}

	r.mu.RLock()
	gen := r.gen
	chain := buildChain(roleName, r.maxDepth, r.lookupLocked)
	levels := make([]*role.Definition, 0, len(chain.Roles))
	if chain.Valid {
		for _, name := range chain.Roles[:len(chain.Roles)-1] {
			levels = append(levels, r.defs[name])
		}
	}
	r.mu.RUnlock()

	if !chain.Valid {
		r.logger.Warn("bastion: invalid inheritance chain",
			slog.String("role", roleName),
			slog.String("reason", string(chain.Reason)),
			slog.String("detail", chain.Detail),
		)
		if base, ok := role.BasePermissions(roleName); ok {
			return base
		}
		return permission.NewSet()
	}

	base, _ := role.BasePermissions(chain.Roles[len(chain.Roles)-1])
	perms := merge(base, levels)

	// Skip caching when the registry changed while merging.
	r.mu.RLock()
	if r.gen == gen {
		r.cache.Set(ctx, roleName, perms)
	}
	r.mu.RUnlock()
	return perms
}

// merge applies levels from the outermost custom role inward. levels[0] is
// the queried role. A permission denied at any level stays denied for every
// level below it, including through wildcard and scoped grants.
func merge(base permission.Set, levels []*role.Definition) permission.Set {
	grants := base.Clone()
	denied := permission.NewSet()

	for i := len(levels) - 1; i >= 0; i-- {
		def := levels[i]
		levelDeny := permission.NewSet(def.DeniedPermissions...)

		if !denied.Contains(permission.Wildcard) {
			for _, p := range def.Permissions {
				if levelDeny.Contains(p) || denied.Contains(p) {
					continue
				}
				grants.Add(p)
			}
		}

		denied.Union(levelDeny)
		if len(denied) > 0 {
			grants = subtract(grants, denied)
		}
	}
	return grants
}

// subtract removes denied from grants, expanding a wildcard grant into the
// concrete enumeration first so individual denials take effect. A scoped
// grant is removed when its unscoped form is denied.
func subtract(grants, denied permission.Set) permission.Set {
	if denied.Contains(permission.Wildcard) {
		return permission.NewSet()
	}
	if grants.Contains(permission.Wildcard) {
		grants.Remove(permission.Wildcard)
		for _, p := range permission.Enumeration() {
			if p != permission.Wildcard {
				grants.Add(p)
			}
		}
	}
	for p := range grants {
		if denied.Contains(p) || denied.Contains(p.Unscoped()) {
			grants.Remove(p)
		}
	}
	return grants
}

// HasPermission reports whether roleName is granted perm, either directly,
// through the wildcard, or through the scoped variant when scope is set.
func (r *Resolver) HasPermission(ctx context.Context, roleName string, perm permission.Permission, scope string) bool {
	return r.Resolve(ctx, roleName).Grants(perm, scope)
}

// Chain returns the inheritance chain of roleName.
func (r *Resolver) Chain(roleName string) Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return buildChain(roleName, r.maxDepth, r.lookupLocked)
}

// Exists reports whether name is a base role or a registered custom role.
func (r *Resolver) Exists(name string) bool {
	if role.IsBase(name) {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Register validates def and adds it to the registry. Every check runs
// before the registry is touched, so a rejected definition leaves no trace.
func (r *Resolver) Register(ctx context.Context, def *role.Definition) error {
	if def == nil || !role.ValidName(def.Name) {
		return errs.ErrInvalidRoleName
	}
	if role.IsBase(def.Name) {
		return fmt.Errorf("register %q: %w", def.Name, errs.ErrBaseRoleImmutable)
	}
	if def.InheritsFrom == def.Name {
		return &errs.CycleError{Role: def.Name, Chain: []string{def.Name, def.Name}, Cause: errs.ErrSelfInheritance}
	}

	r.mu.Lock()
	if _, exists := r.defs[def.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("register %q: %w", def.Name, errs.ErrRoleExists)
	}
	if _, ok := r.lookupLocked(def.InheritsFrom); !ok && !role.IsBase(def.InheritsFrom) {
		r.mu.Unlock()
		return &errs.CycleError{Role: def.Name, Chain: []string{def.Name, def.InheritsFrom}, Cause: errs.ErrUnknownParentRole}
	}

	candidate := def.Clone()
	chain := buildChain(candidate.Name, r.maxDepth, func(name string) (*role.Definition, bool) {
		if name == candidate.Name {
			return candidate, true
		}
		return r.lookupLocked(name)
	})
	if !chain.Valid {
		r.mu.Unlock()
		return chain.err(def.Name)
	}

	r.defs[candidate.Name] = candidate
	r.gen++
	affected := r.affectedLocked(candidate.Name)
	r.mu.Unlock()

	r.cache.Invalidate(ctx, affected...)
	return nil
}

// Unregister removes a custom role. Roles that inherit from it resolve to
// the empty set until it is registered again.
func (r *Resolver) Unregister(ctx context.Context, name string) error {
	if role.IsBase(name) {
		return fmt.Errorf("unregister %q: %w", name, errs.ErrBaseRoleImmutable)
	}

	r.mu.Lock()
	if _, ok := r.defs[name]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("unregister %q: %w", name, errs.ErrRoleNotFound)
	}
	affected := r.affectedLocked(name)
	delete(r.defs, name)
	r.gen++
	r.mu.Unlock()

	r.cache.Invalidate(ctx, affected...)
	return nil
}

// InvalidateCache drops the cached set of roleName and of every custom role
// whose chain passes through it.
func (r *Resolver) InvalidateCache(ctx context.Context, roleName string) {
	r.mu.RLock()
	affected := r.affectedLocked(roleName)
	r.mu.RUnlock()
	r.cache.Invalidate(ctx, affected...)
}

// Definition returns a copy of the named custom role definition.
func (r *Resolver) Definition(name string) (*role.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def.Clone(), ok
}

// Definitions returns copies of every custom role ordered by name.
func (r *Resolver) Definitions() []*role.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*role.Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dependents returns the custom roles whose direct parent is name.
func (r *Resolver) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for n, def := range r.defs {
		if def.InheritsFrom == name {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Resolver) lookupLocked(name string) (*role.Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// affectedLocked returns name plus every registered role whose chain
// includes it. Must hold at least a read lock.
func (r *Resolver) affectedLocked(name string) []string {
	out := []string{name}
	for n := range r.defs {
		if n == name {
			continue
		}
		if buildChain(n, r.maxDepth, r.lookupLocked).Includes(name) {
			out = append(out, n)
		}
	}
	return out
}
