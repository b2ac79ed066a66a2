package role

import "context"

// Store defines persistence operations for custom role definitions.
// Definitions are keyed by name; implementations return
// errs.ErrRoleNotFound for missing rows and errs.ErrRoleExists on
// duplicate names.
type Store interface {
	// CreateRole persists a new definition.
	CreateRole(ctx context.Context, d *Definition) error

	// GetRole retrieves a definition by name.
	GetRole(ctx context.Context, name string) (*Definition, error)

	// UpdateRole persists changes to an existing definition.
	UpdateRole(ctx context.Context, d *Definition) error

	// DeleteRole removes a definition by name.
	DeleteRole(ctx context.Context, name string) error

	// ListRoles returns every persisted definition ordered by name.
	ListRoles(ctx context.Context) ([]*Definition, error)
}
