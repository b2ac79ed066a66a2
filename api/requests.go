package api

import "time"

// ──────────────────────────────────────────────────
// Check requests
// ──────────────────────────────────────────────────

// CheckRequest is the request body for an authorization check. When
// PrincipalKind is empty the authenticated caller is checked.
type CheckRequest struct {
	PrincipalKind string   `json:"principal_kind,omitempty" description:"Principal type (session, credential)"`
	PrincipalID   string   `json:"principal_id,omitempty" description:"Principal identifier"`
	Role          string   `json:"role,omitempty" description:"Base or custom role name"`
	Permissions   []string `json:"permissions,omitempty" description:"Explicit credential permissions"`
	Permission    string   `json:"permission" description:"Requested permission (e.g. content:publish)"`
	Scope         string   `json:"scope,omitempty" description:"Blueprint slug for scoped permissions"`
}

// BatchCheckRequest contains multiple checks.
type BatchCheckRequest struct {
	Checks []CheckRequest `json:"checks" description:"List of authorization checks"`
}

// ──────────────────────────────────────────────────
// Role requests
// ──────────────────────────────────────────────────

// CreateRoleRequest is the body for creating a custom role.
type CreateRoleRequest struct {
	Name              string         `json:"name" description:"Role name"`
	InheritsFrom      string         `json:"inherits_from" description:"Parent base or custom role"`
	Permissions       []string       `json:"permissions,omitempty" description:"Additional grants"`
	DeniedPermissions []string       `json:"denied_permissions,omitempty" description:"Permanent denials"`
	Description       string         `json:"description,omitempty" description:"Human-readable description"`
	Metadata          map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// UpdateRoleRequest is the body for updating a custom role.
type UpdateRoleRequest struct {
	InheritsFrom      *string        `json:"inherits_from,omitempty" description:"Parent base or custom role"`
	Permissions       []string       `json:"permissions,omitempty" description:"Additional grants"`
	DeniedPermissions []string       `json:"denied_permissions,omitempty" description:"Permanent denials"`
	Description       *string        `json:"description,omitempty" description:"Human-readable description"`
	Metadata          map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// GetRoleRequest is the path parameter for getting a role.
type GetRoleRequest struct {
	RoleName string `path:"roleName" description:"Role name"`
}

// ImportRolesRequest is the body for a bulk role import.
type ImportRolesRequest struct {
	Roles     []CreateRoleRequest `json:"roles" description:"Role definitions"`
	Overwrite bool                `json:"overwrite,omitempty" description:"Replace existing roles"`
}

// ──────────────────────────────────────────────────
// Credential requests
// ──────────────────────────────────────────────────

// IssueCredentialRequest is the body for issuing a credential.
type IssueCredentialRequest struct {
	Name        string         `json:"name" description:"Display name"`
	Permissions []string       `json:"permissions,omitempty" description:"Explicit permissions"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty" description:"Expiry (RFC3339)"`
	RateLimit   *int           `json:"rate_limit,omitempty" description:"Requests per minute (0 = unlimited)"`
	Metadata    map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// UpdateCredentialRequest is the body for updating a credential.
type UpdateCredentialRequest struct {
	Name        *string        `json:"name,omitempty" description:"Display name"`
	Permissions []string       `json:"permissions,omitempty" description:"Explicit permissions"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty" description:"Expiry (RFC3339)"`
	ClearExpiry bool           `json:"clear_expiry,omitempty" description:"Remove the expiry"`
	RateLimit   *int           `json:"rate_limit,omitempty" description:"Requests per minute"`
	Metadata    map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// GetCredentialRequest is the path parameter for a credential.
type GetCredentialRequest struct {
	CredentialID string `path:"credentialId" description:"Credential ID"`
}
