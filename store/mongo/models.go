package mongo

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
	ID                string         `grove:"id,pk"              bson:"_id"`
	Name              string         `grove:"name"               bson:"name"`
	InheritsFrom      string         `grove:"inherits_from"      bson:"inherits_from"`
	Permissions       []string       `grove:"permissions"        bson:"permissions"`
	DeniedPermissions []string       `grove:"denied_permissions" bson:"denied_permissions"`
	Description       string         `grove:"description"        bson:"description"`
	Metadata          map[string]any `grove:"metadata"           bson:"metadata,omitempty"`
	CreatedAt         time.Time      `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time      `grove:"updated_at"         bson:"updated_at"`
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
	ID              string         `grove:"id,pk"        bson:"_id"`
	Name            string         `grove:"name"         bson:"name"`
	OwnerID         string         `grove:"owner_id"     bson:"owner_id"`
	SecretHash      string         `grove:"secret_hash"  bson:"secret_hash"`
	Prefix          string         `grove:"prefix"       bson:"prefix"`
	Permissions     []string       `grove:"permissions"  bson:"permissions"`
	Active          bool           `grove:"active"       bson:"active"`
	LastUsedAt      *time.Time     `grove:"last_used_at" bson:"last_used_at,omitempty"`
	ExpiresAt       *time.Time     `grove:"expires_at"   bson:"expires_at,omitempty"`
	RateLimit       int            `grove:"rate_limit"   bson:"rate_limit"`
	Metadata        map[string]any `grove:"metadata"     bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"   bson:"created_at"`
	UpdatedAt       time.Time      `grove:"updated_at"   bson:"updated_at"`
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
