// Package plugin defines the plugin system for Bastion.
// Plugins are notified of lifecycle events (check performed, role created,
// credential rotated, etc.) and can react with logging, metrics, audit
// trails and so on.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before an authorization check is evaluated.
// The req parameter is *bastion.CheckRequest (passed as any to avoid import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after an authorization check completes.
// The req parameter is *bastion.CheckRequest; result is *bastion.CheckResult.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req, result any) error
}

// ──────────────────────────────────────────────────
// Custom role lifecycle hooks
// ──────────────────────────────────────────────────

// RoleCreated is called after a custom role is created or imported.
type RoleCreated interface {
	OnRoleCreated(ctx context.Context, d *role.Definition) error
}

// RoleUpdated is called after a custom role is updated.
type RoleUpdated interface {
	OnRoleUpdated(ctx context.Context, d *role.Definition) error
}

// RoleDeleted is called after a custom role is deleted.
type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, name string) error
}

// ──────────────────────────────────────────────────
// Credential lifecycle hooks
// ──────────────────────────────────────────────────

// CredentialIssued is called after a credential is issued. The secret is
// never passed to plugins.
type CredentialIssued interface {
	OnCredentialIssued(ctx context.Context, c *credential.Credential) error
}

// CredentialRotated is called after a credential is replaced.
type CredentialRotated interface {
	OnCredentialRotated(ctx context.Context, previous, next *credential.Credential) error
}

// CredentialRevoked is called after a credential is revoked.
type CredentialRevoked interface {
	OnCredentialRevoked(ctx context.Context, c *credential.Credential) error
}

// CredentialValidated is called after every secret validation, successful
// or not.
type CredentialValidated interface {
	OnCredentialValidated(ctx context.Context, res *credential.ValidationResult) error
}

// CredentialsExpired is called after a cleanup pass deactivated at least
// one credential.
type CredentialsExpired interface {
	OnCredentialsExpired(ctx context.Context, count int64) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
