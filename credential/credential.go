// Package credential issues, validates, rotates and revokes long-lived API
// credentials. Only a SHA-256 digest of each secret is stored; the raw
// secret is returned exactly once, by Issue or Rotate.
package credential

import (
	"maps"
	"slices"
	"time"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/ratelimit"
)

// Credential is a persisted API key record.
type Credential struct {
	ID          id.CredentialID         `json:"id"`
	Name        string                  `json:"name"`
	OwnerID     string                  `json:"owner_id"`
	SecretHash  string                  `json:"-"`
	Prefix      string                  `json:"prefix"`
	Permissions []permission.Permission `json:"permissions"`
	Active      bool                    `json:"active"`
	LastUsedAt  *time.Time              `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
	RateLimit   int                     `json:"rate_limit"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Expired reports whether the credential has a non-zero expiry at or
// before now.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.IsZero() && !now.Before(*c.ExpiresAt)
}

// normalizeExpiry copies t, mapping nil and the zero time to nil so that
// "never expires" has a single stored form.
func normalizeExpiry(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := *t
	return &v
}

// PermissionSet returns the explicit permissions as a set.
func (c *Credential) PermissionSet() permission.Set {
	return permission.NewSet(c.Permissions...)
}

// Clone returns a deep copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Permissions = slices.Clone(c.Permissions)
	out.Metadata = maps.Clone(c.Metadata)
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		out.LastUsedAt = &t
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// public returns a copy without the secret digest.
func (c *Credential) public() *Credential {
	out := c.Clone()
	out.SecretHash = ""
	return out
}

// Reason explains a failed validation.
type Reason string

const (
	ReasonNotFound    Reason = "not_found"
	ReasonRevoked     Reason = "revoked"
	ReasonExpired     Reason = "expired"
	ReasonRateLimited Reason = "rate_limited"
)

// ValidationResult is the structured outcome of Service.Validate. RateLimit
// is set whenever the limiter was consulted.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Reason     Reason            `json:"reason,omitempty"`
	Credential *Credential       `json:"credential,omitempty"`
	RateLimit  *ratelimit.Result `json:"rate_limit,omitempty"`
}

// Issued carries a new credential and its raw secret.
type Issued struct {
	Credential *Credential `json:"credential"`
	Secret     string      `json:"secret"`
}

// IssueRequest describes a credential to create. A nil RateLimit uses the
// service default; zero means unlimited and negative values are rejected.
// A nil or zero ExpiresAt never expires.
type IssueRequest struct {
	Name        string         `json:"name"`
	Permissions []string       `json:"permissions"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	RateLimit   *int           `json:"rate_limit,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpdateRequest changes mutable credential settings. Nil fields are left
// unchanged; ClearExpiry removes the expiry.
type UpdateRequest struct {
	Name        *string        `json:"name,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	ClearExpiry bool           `json:"clear_expiry,omitempty"`
	RateLimit   *int           `json:"rate_limit,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
