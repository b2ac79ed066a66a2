package postgres

import (
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
	ID                string         `grove:"id,pk"`
	Name              string         `grove:"name,notnull"`
	InheritsFrom      string         `grove:"inherits_from,notnull"`
	Permissions       []string       `grove:"permissions,type:jsonb"`
	DeniedPermissions []string       `grove:"denied_permissions,type:jsonb"`
	Description       string         `grove:"description"`
	Metadata          map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt         time.Time      `grove:"created_at,notnull"`
	UpdatedAt         time.Time      `grove:"updated_at,notnull"`
}

func roleToModel(d *role.Definition) *roleModel {
	return &roleModel{
		ID:                d.ID.String(),
		Name:              d.Name,
		InheritsFrom:      d.InheritsFrom,
		Permissions:       permission.Strings(d.Permissions),
		DeniedPermissions: permission.Strings(d.DeniedPermissions),
		Description:       d.Description,
		Metadata:          d.Metadata,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func roleFromModel(m *roleModel) (*role.Definition, error) {
	rid, _ := id.ParseCustomRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	grants, err := permission.ParseList(m.Permissions)
	if err != nil {
		return nil, &errs.IntegrityError{Entity: "role", ID: m.Name, Err: err}
	}
	denies, err := permission.ParseList(m.DeniedPermissions)
	if err != nil {
		return nil, &errs.IntegrityError{Entity: "role", ID: m.Name, Err: err}
	}
	return &role.Definition{
		ID:                rid,
		Name:              m.Name,
		InheritsFrom:      m.InheritsFrom,
		Permissions:       grants,
		DeniedPermissions: denies,
		Description:       m.Description,
		Metadata:          m.Metadata,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

// ──────────────────────────────────────────────────
// Credential model
// ──────────────────────────────────────────────────

type credentialModel struct {
	grove.BaseModel `grove:"table:bastion_credentials"`
	ID              string         `grove:"id,pk"`
	Name            string         `grove:"name,notnull"`
	OwnerID         string         `grove:"owner_id,notnull"`
	SecretHash      string         `grove:"secret_hash,notnull"`
	Prefix          string         `grove:"prefix,notnull"`
	Permissions     []string       `grove:"permissions,type:jsonb"`
	Active          bool           `grove:"active,notnull"`
	LastUsedAt      *time.Time     `grove:"last_used_at"`
	ExpiresAt       *time.Time     `grove:"expires_at"`
	RateLimit       int            `grove:"rate_limit,notnull"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
	UpdatedAt       time.Time      `grove:"updated_at,notnull"`
}

func credentialToModel(c *credential.Credential) *credentialModel {
	return &credentialModel{
		ID:          c.ID.String(),
		Name:        c.Name,
		OwnerID:     c.OwnerID,
		SecretHash:  c.SecretHash,
		Prefix:      c.Prefix,
		Permissions: permission.Strings(c.Permissions),
		Active:      c.Active,
		LastUsedAt:  c.LastUsedAt,
		ExpiresAt:   c.ExpiresAt,
		RateLimit:   c.RateLimit,
		Metadata:    c.Metadata,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func credentialFromModel(m *credentialModel) (*credential.Credential, error) {
	cid, _ := id.ParseCredentialID(m.ID) //nolint:errcheck // stored IDs are always valid
	perms, err := credential.DecodePermissions(m.ID, m.Permissions)
	if err != nil {
		return nil, err
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
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}
