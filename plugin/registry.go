package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/role"
)

// Compile-time check that the registry can receive credential events.
var _ credential.Hooks = (*Registry)(nil)

// Named entry types pair a hook with the plugin name for logging.

type beforeCheckEntry struct {
	name string
	hook BeforeCheck
}
type afterCheckEntry struct {
	name string
	hook AfterCheck
}
type roleCreatedEntry struct {
	name string
	hook RoleCreated
}
type roleUpdatedEntry struct {
	name string
	hook RoleUpdated
}
type roleDeletedEntry struct {
	name string
	hook RoleDeleted
}
type credentialIssuedEntry struct {
	name string
	hook CredentialIssued
}
type credentialRotatedEntry struct {
	name string
	hook CredentialRotated
}
type credentialRevokedEntry struct {
	name string
	hook CredentialRevoked
}
type credentialValidatedEntry struct {
	name string
	hook CredentialValidated
}
type credentialsExpiredEntry struct {
	name string
	hook CredentialsExpired
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook. Register all plugins
// before the engine starts serving.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck         []beforeCheckEntry
	afterCheck          []afterCheckEntry
	roleCreated         []roleCreatedEntry
	roleUpdated         []roleUpdatedEntry
	roleDeleted         []roleDeletedEntry
	credentialIssued    []credentialIssuedEntry
	credentialRotated   []credentialRotatedEntry
	credentialRevoked   []credentialRevokedEntry
	credentialValidated []credentialValidatedEntry
	credentialsExpired  []credentialsExpiredEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeCheck); ok {
		r.beforeCheck = append(r.beforeCheck, beforeCheckEntry{name, h})
	}
	if h, ok := p.(AfterCheck); ok {
		r.afterCheck = append(r.afterCheck, afterCheckEntry{name, h})
	}
	if h, ok := p.(RoleCreated); ok {
		r.roleCreated = append(r.roleCreated, roleCreatedEntry{name, h})
	}
	if h, ok := p.(RoleUpdated); ok {
		r.roleUpdated = append(r.roleUpdated, roleUpdatedEntry{name, h})
	}
	if h, ok := p.(RoleDeleted); ok {
		r.roleDeleted = append(r.roleDeleted, roleDeletedEntry{name, h})
	}
	if h, ok := p.(CredentialIssued); ok {
		r.credentialIssued = append(r.credentialIssued, credentialIssuedEntry{name, h})
	}
	if h, ok := p.(CredentialRotated); ok {
		r.credentialRotated = append(r.credentialRotated, credentialRotatedEntry{name, h})
	}
	if h, ok := p.(CredentialRevoked); ok {
		r.credentialRevoked = append(r.credentialRevoked, credentialRevokedEntry{name, h})
	}
	if h, ok := p.(CredentialValidated); ok {
		r.credentialValidated = append(r.credentialValidated, credentialValidatedEntry{name, h})
	}
	if h, ok := p.(CredentialsExpired); ok {
		r.credentialsExpired = append(r.credentialsExpired, credentialsExpiredEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Check event emitters
// ──────────────────────────────────────────────────

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, req any) {
	for _, e := range r.beforeCheck {
		if err := e.hook.OnBeforeCheck(ctx, req); err != nil {
			r.logHookError("OnBeforeCheck", e.name, err)
		}
	}
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, req, result any) {
	for _, e := range r.afterCheck {
		if err := e.hook.OnAfterCheck(ctx, req, result); err != nil {
			r.logHookError("OnAfterCheck", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Role event emitters
// ──────────────────────────────────────────────────

// EmitRoleCreated notifies all plugins that implement RoleCreated.
func (r *Registry) EmitRoleCreated(ctx context.Context, d *role.Definition) {
	for _, e := range r.roleCreated {
		if err := e.hook.OnRoleCreated(ctx, d); err != nil {
			r.logHookError("OnRoleCreated", e.name, err)
		}
	}
}

// EmitRoleUpdated notifies all plugins that implement RoleUpdated.
func (r *Registry) EmitRoleUpdated(ctx context.Context, d *role.Definition) {
	for _, e := range r.roleUpdated {
		if err := e.hook.OnRoleUpdated(ctx, d); err != nil {
			r.logHookError("OnRoleUpdated", e.name, err)
		}
	}
}

// EmitRoleDeleted notifies all plugins that implement RoleDeleted.
func (r *Registry) EmitRoleDeleted(ctx context.Context, name string) {
	for _, e := range r.roleDeleted {
		if err := e.hook.OnRoleDeleted(ctx, name); err != nil {
			r.logHookError("OnRoleDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Credential event emitters
// ──────────────────────────────────────────────────

// EmitCredentialIssued notifies all plugins that implement CredentialIssued.
func (r *Registry) EmitCredentialIssued(ctx context.Context, c *credential.Credential) {
	for _, e := range r.credentialIssued {
		if err := e.hook.OnCredentialIssued(ctx, c); err != nil {
			r.logHookError("OnCredentialIssued", e.name, err)
		}
	}
}

// EmitCredentialRotated notifies all plugins that implement CredentialRotated.
func (r *Registry) EmitCredentialRotated(ctx context.Context, previous, next *credential.Credential) {
	for _, e := range r.credentialRotated {
		if err := e.hook.OnCredentialRotated(ctx, previous, next); err != nil {
			r.logHookError("OnCredentialRotated", e.name, err)
		}
	}
}

// EmitCredentialRevoked notifies all plugins that implement CredentialRevoked.
func (r *Registry) EmitCredentialRevoked(ctx context.Context, c *credential.Credential) {
	for _, e := range r.credentialRevoked {
		if err := e.hook.OnCredentialRevoked(ctx, c); err != nil {
			r.logHookError("OnCredentialRevoked", e.name, err)
		}
	}
}

// EmitCredentialValidated notifies all plugins that implement CredentialValidated.
func (r *Registry) EmitCredentialValidated(ctx context.Context, res *credential.ValidationResult) {
	for _, e := range r.credentialValidated {
		if err := e.hook.OnCredentialValidated(ctx, res); err != nil {
			r.logHookError("OnCredentialValidated", e.name, err)
		}
	}
}

// EmitCredentialsExpired notifies all plugins that implement CredentialsExpired.
func (r *Registry) EmitCredentialsExpired(ctx context.Context, count int64) {
	for _, e := range r.credentialsExpired {
		if err := e.hook.OnCredentialsExpired(ctx, count); err != nil {
			r.logHookError("OnCredentialsExpired", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
