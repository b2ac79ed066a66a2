package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

// ──────────────────────────────────────────────────
// Custom role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel   `grove:"table:bastion_custom_roles"`
	ID                string    `grove:"id,pk"`
	Name              string    `grove:"name,notnull"`
	InheritsFrom      string    `grove:"inherits_from,notnull"`
	Permissions       string    `grove:"permissions"`        // JSON text
	DeniedPermissions string    `grove:"denied_permissions"` // JSON text
	Description       string    `grove:"description"`
	Metadata          string    `grove:"metadata"` // JSON text
	CreatedAt         time.Time `grove:"created_at,notnull"`
	UpdatedAt         time.Time `grove:"updated_at,notnull"`
}

func roleToModel(d *role.Definition) (*roleModel, error) {
	grants, err := json.Marshal(permission.Strings(d.Permissions))
	if err != nil {
		return nil, fmt.Errorf("marshal role permissions: %w", err)
	}
	denies, err := json.Marshal(permission.Strings(d.DeniedPermissions))
	if err != nil {
		return nil, fmt.Errorf("marshal role denied permissions: %w", err)
	}
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal role metadata: %w", err)
	}
	return &roleModel{
		ID:                d.ID.String(),
		Name:              d.Name,
		InheritsFrom:      d.InheritsFrom,
		Permissions:       string(grants),
		DeniedPermissions: string(denies),
		Description:       d.Description,
		Metadata:          string(metadata),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}, nil
}

func roleFromModel(m *roleModel) (*role.Definition, error) {
	rid, _ := id.ParseCustomRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	grants, err := decodePermissions("role", m.Name, m.Permissions)
	if err != nil {
		return nil, err
	}
	denies, err := decodePermissions("role", m.Name, m.DeniedPermissions)
	if err != nil {
		return nil, err
	}
	var metadata map[string]any
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal role metadata: %w", err)
		}
	}
	return &role.Definition{
		ID:                rid,
		Name:              m.Name,
		InheritsFrom:      m.InheritsFrom,
		Permissions:       grants,
		DeniedPermissions: denies,
		Description:       m.Description,
		Metadata:          metadata,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

// ──────────────────────────────────────────────────
// Credential model
// ──────────────────────────────────────────────────

type credentialModel struct {
	grove.BaseModel `grove:"table:bastion_credentials"`
	ID              string     `grove:"id,pk"`
	Name            string     `grove:"name,notnull"`
	OwnerID         string     `grove:"owner_id,notnull"`
	SecretHash      string     `grove:"secret_hash,notnull"`
	Prefix          string     `grove:"prefix,notnull"`
	Permissions     string     `grove:"permissions"` // JSON text
	Active          bool       `grove:"active,notnull"`
	LastUsedAt      *time.Time `grove:"last_used_at"`
	ExpiresAt       *time.Time `grove:"expires_at"`
	RateLimit       int        `grove:"rate_limit,notnull"`
	Metadata        string     `grove:"metadata"` // JSON text
	CreatedAt       time.Time  `grove:"created_at,notnull"`
	UpdatedAt       time.Time  `grove:"updated_at,notnull"`
}

func credentialToModel(c *credential.Credential) (*credentialModel, error) {
	perms, err := json.Marshal(permission.Strings(c.Permissions))
	if err != nil {
		return nil, fmt.Errorf("marshal credential permissions: %w", err)
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal credential metadata: %w", err)
	}
	return &credentialModel{
		ID:          c.ID.String(),
		Name:        c.Name,
		OwnerID:     c.OwnerID,
		SecretHash:  c.SecretHash,
		Prefix:      c.Prefix,
		Permissions: string(perms),
		Active:      c.Active,
		LastUsedAt:  utcPtr(c.LastUsedAt),
		ExpiresAt:   utcPtr(c.ExpiresAt),
		RateLimit:   c.RateLimit,
		Metadata:    string(metadata),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}, nil
}

func credentialFromModel(m *credentialModel) (*credential.Credential, error) {
	cid, _ := id.ParseCredentialID(m.ID) //nolint:errcheck // stored IDs are always valid
	perms, err := decodePermissions("credential", m.ID, m.Permissions)
	if err != nil {
		return nil, err
	}
	var metadata map[string]any
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal credential metadata: %w", err)
		}
	}
	return &credential.Credential{
		ID:          cid,
		Name:        m.Name,
		OwnerID:     m.OwnerID,
		SecretHash:  m.SecretHash,
		Prefix:      m.Prefix,
		Permissions: perms,
		Active:      m.Active,
		LastUsedAt:  m.LastUsedAt,
		ExpiresAt:   m.ExpiresAt,
		RateLimit:   m.RateLimit,
		Metadata:    metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

// utcPtr copies t in UTC. SQLite compares the stored text, so every time
// column must share one zone.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// decodePermissions parses a JSON permission list. Unknown or malformed
// entries are integrity violations.
func decodePermissions(entity, key, text string) ([]permission.Permission, error) {
	if text == "" {
		return nil, nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &errs.IntegrityError{Entity: entity, ID: key, Err: err}
	}
	perms, err := permission.ParseList(raw)
	if err != nil {
		return nil, &errs.IntegrityError{Entity: entity, ID: key, Err: err}
	}
	return perms, nil
}
