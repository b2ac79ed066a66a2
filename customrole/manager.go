// Package customrole manages the lifecycle of custom roles on top of the
// resolver: create, update, delete, bulk export and import, with optional
// persistence and change notifications.
package customrole

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/resolver"
	"github.com/xraph/bastion/role"
)

// CreateOptions holds the optional parts of a new custom role.
type CreateOptions struct {
	Permissions       []string       `json:"permissions,omitempty"`
	DeniedPermissions []string       `json:"denied_permissions,omitempty"`
	Description       string         `json:"description,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// UpdateOptions changes an existing custom role. Nil fields are unchanged;
// a non-nil empty permission list clears it.
type UpdateOptions struct {
	InheritsFrom      *string        `json:"inherits_from,omitempty"`
	Permissions       []string       `json:"permissions,omitempty"`
	DeniedPermissions []string       `json:"denied_permissions,omitempty"`
	Description       *string        `json:"description,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// ChangeFunc is called after a role is created or updated.
type ChangeFunc func(ctx context.Context, d *role.Definition)

// DeleteFunc is called after a role is deleted.
type DeleteFunc func(ctx context.Context, name string)

// Manager is safe for concurrent use. Mutations are serialized.
type Manager struct {
	resolver *resolver.Resolver
	store    role.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	started  bool
	onChange []ChangeFunc
	onDelete []DeleteFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists definitions. Without a store, roles live only in memory.
func WithStore(s role.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithPlugins sets the plugin registry notified of role events.
func WithPlugins(r *plugin.Registry) Option {
	return func(m *Manager) { m.plugins = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager over res.
func New(res *resolver.Resolver, opts ...Option) *Manager {
	m := &Manager{
		resolver: res,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers a callback run after every create, update or import.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// OnDelete registers a callback run after every delete.
func (m *Manager) OnDelete(fn DeleteFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDelete = append(m.onDelete, fn)
}

// Start loads persisted definitions into the resolver, parents first.
// Definitions whose chain no longer validates are logged and skipped; they
// resolve to nothing until fixed. Undecodable rows abort Start.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	if m.store != nil {
		defs, err := m.store.ListRoles(ctx)
		if err != nil {
			return fmt.Errorf("customrole: load roles: %w", err)
		}
		for _, d := range orderParentsFirst(defs) {
			if m.resolver.Exists(d.Name) {
				continue
			}
			if err := m.resolver.Register(ctx, d); err != nil {
				m.logger.Warn("bastion: skipping persisted custom role",
					slog.String("role", d.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	m.started = true
	return nil
}

// Stop marks the manager stopped. Registered roles stay resolvable.
func (m *Manager) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Create registers and persists a new custom role. It fails when name is a
// base role or an existing custom role, and when any permission is outside
// the enumeration.
func (m *Manager) Create(ctx context.Context, name, inheritsFrom string, opts CreateOptions) (*role.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil, errs.ErrNotStarted
	}

	d, err := m.create(ctx, name, inheritsFrom, opts)
	if err != nil {
		return nil, err
	}
	m.notifyChange(ctx, d, true)
	return d, nil
}

func (m *Manager) create(ctx context.Context, name, inheritsFrom string, opts CreateOptions) (*role.Definition, error) {
	grants, err := permission.ParseList(opts.Permissions)
	if err != nil {
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}
	denies, err := permission.ParseList(opts.DeniedPermissions)
	if err != nil {
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}

	now := m.now().UTC()
	d := &role.Definition{
		ID:                id.NewCustomRoleID(),
		Name:              name,
		InheritsFrom:      inheritsFrom,
		Permissions:       grants,
		DeniedPermissions: denies,
		Description:       opts.Description,
		Metadata:          maps.Clone(opts.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := m.resolver.Register(ctx, d); err != nil {
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}
	if m.store != nil {
		if err := m.store.CreateRole(ctx, d); err != nil {
			m.rollback(ctx, name, nil)
			return nil, fmt.Errorf("create role %q: persist: %w", name, err)
		}
	}
	return d.Clone(), nil
}

// Update re-registers name with the requested changes so inheritance is
// validated again. On any failure the previous definition is restored.
func (m *Manager) Update(ctx context.Context, name string, opts UpdateOptions) (*role.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil, errs.ErrNotStarted
	}

	d, err := m.update(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	m.notifyChange(ctx, d, false)
	return d, nil
}

func (m *Manager) update(ctx context.Context, name string, opts UpdateOptions) (*role.Definition, error) {
	if role.IsBase(name) {
		return nil, fmt.Errorf("update role %q: %w", name, errs.ErrBaseRoleImmutable)
	}
	prev, ok := m.resolver.Definition(name)
	if !ok {
		return nil, fmt.Errorf("update role %q: %w", name, errs.ErrRoleNotFound)
	}

	next := prev.Clone()
	if opts.Permissions != nil {
		grants, err := permission.ParseList(opts.Permissions)
		if err != nil {
			return nil, fmt.Errorf("update role %q: %w", name, err)
		}
		next.Permissions = grants
	}
	if opts.DeniedPermissions != nil {
		denies, err := permission.ParseList(opts.DeniedPermissions)
		if err != nil {
			return nil, fmt.Errorf("update role %q: %w", name, err)
		}
		next.DeniedPermissions = denies
	}
	if opts.InheritsFrom != nil {
		next.InheritsFrom = *opts.InheritsFrom
	}
	if opts.Description != nil {
		next.Description = *opts.Description
	}
	if opts.Metadata != nil {
		next.Metadata = maps.Clone(opts.Metadata)
	}
	next.UpdatedAt = m.now().UTC()

	if err := m.resolver.Unregister(ctx, name); err != nil {
		return nil, fmt.Errorf("update role %q: %w", name, err)
	}
	if err := m.resolver.Register(ctx, next); err != nil {
		m.restore(ctx, prev)
		return nil, fmt.Errorf("update role %q: %w", name, err)
	}
	if m.store != nil {
		if err := m.store.UpdateRole(ctx, next); err != nil {
			m.rollback(ctx, name, prev)
			return nil, fmt.Errorf("update role %q: persist: %w", name, err)
		}
	}
	return next.Clone(), nil
}

// Delete removes a custom role. It is refused with a *errs.DependentsError
// while any other custom role inherits directly from name.
func (m *Manager) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return errs.ErrNotStarted
	}
	if role.IsBase(name) {
		return fmt.Errorf("delete role %q: %w", name, errs.ErrBaseRoleImmutable)
	}

	prev, ok := m.resolver.Definition(name)
	if !ok {
		return fmt.Errorf("delete role %q: %w", name, errs.ErrRoleNotFound)
	}
	if deps := m.resolver.Dependents(name); len(deps) > 0 {
		return &errs.DependentsError{Role: name, Dependents: deps}
	}

	if err := m.resolver.Unregister(ctx, name); err != nil {
		return fmt.Errorf("delete role %q: %w", name, err)
	}
	if m.store != nil {
		if err := m.store.DeleteRole(ctx, name); err != nil && !errors.Is(err, errs.ErrRoleNotFound) {
			m.restore(ctx, prev)
			return fmt.Errorf("delete role %q: persist: %w", name, err)
		}
	}

	for _, fn := range m.onDelete {
		fn(ctx, name)
	}
	if m.plugins != nil {
		m.plugins.EmitRoleDeleted(ctx, name)
	}
	return nil
}

// Get returns a custom role definition.
func (m *Manager) Get(_ context.Context, name string) (*role.Definition, error) {
	d, ok := m.resolver.Definition(name)
	if !ok {
		return nil, fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
	}
	return d, nil
}

// List returns every custom role ordered by name.
func (m *Manager) List(_ context.Context) []*role.Definition {
	return m.resolver.Definitions()
}

// rollback unregisters name and, when prev is set, registers it again.
func (m *Manager) rollback(ctx context.Context, name string, prev *role.Definition) {
	if err := m.resolver.Unregister(ctx, name); err != nil {
		m.logger.Error("bastion: role rollback failed",
			slog.String("role", name),
			slog.String("error", err.Error()),
		)
	}
	if prev != nil {
		m.restore(ctx, prev)
	}
}

func (m *Manager) restore(ctx context.Context, prev *role.Definition) {
	if err := m.resolver.Register(ctx, prev); err != nil {
		m.logger.Error("bastion: role restore failed",
			slog.String("role", prev.Name),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) notifyChange(ctx context.Context, d *role.Definition, created bool) {
	for _, fn := range m.onChange {
		fn(ctx, d.Clone())
	}
	if m.plugins == nil {
		return
	}
	if created {
		m.plugins.EmitRoleCreated(ctx, d)
	} else {
		m.plugins.EmitRoleUpdated(ctx, d)
	}
}
