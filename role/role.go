// Package role defines the compiled-in base roles, the custom role
// definition entity and its store interface.
package role

import (
	"regexp"
	"slices"
	"time"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

// Base is one of the built-in roles. Base roles are immutable.
type Base string

const (
	Admin      Base = "admin"
	Editor     Base = "editor"
	Viewer     Base = "viewer"
	APIDefault Base = "api-default"
)

var basePermissions = map[Base][]permission.Permission{
	Admin: {permission.Wildcard},
	Editor: {
		permission.BlueprintRead,
		permission.ContentRead,
		permission.ContentCreate,
		permission.ContentUpdate,
		permission.ContentDelete,
		permission.ContentPublish,
		permission.ContentUnpublish,
		permission.WebhookRead,
		permission.MediaRead,
		permission.MediaCreate,
		permission.MediaDelete,
	},
	Viewer: {
		permission.BlueprintRead,
		permission.ContentRead,
		permission.MediaRead,
	},
	APIDefault: {
		permission.BlueprintRead,
		permission.ContentRead,
	},
}

// Bases returns the base roles in a stable order.
func Bases() []Base {
	return []Base{Admin, Editor, Viewer, APIDefault}
}

// IsBase reports whether name is a base role.
func IsBase(name string) bool {
	_, ok := basePermissions[Base(name)]
	return ok
}

// BasePermissions returns a fresh set holding the static permissions of
// name. ok is false when name is not a base role.
func BasePermissions(name string) (permission.Set, bool) {
	perms, ok := basePermissions[Base(name)]
	if !ok {
		return nil, false
	}
	return permission.NewSet(perms...), true
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidName reports whether name is usable as a custom role name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Definition is a custom role: a named extension of a base or another
// custom role that may add grants and permanently deny permissions.
type Definition struct {
	ID                id.CustomRoleID         `json:"id"`
	Name              string                  `json:"name"`
	InheritsFrom      string                  `json:"inherits_from"`
	Permissions       []permission.Permission `json:"permissions,omitempty"`
	DeniedPermissions []permission.Permission `json:"denied_permissions,omitempty"`
	Description       string                  `json:"description,omitempty"`
	Metadata          map[string]any          `json:"metadata,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// Clone returns a deep copy of d safe to hand out of a registry.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.Permissions = slices.Clone(d.Permissions)
	c.DeniedPermissions = slices.Clone(d.DeniedPermissions)
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
