// Package pgxstore provides a PostgreSQL implementation of the Bastion
// composite store on a pgx connection pool with hand-written SQL. It shares
// its schema with the grove postgres backend.
package pgxstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/store/postgres"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

const uniqueViolation = "23505"

// Store is a pgx implementation of the composite Bastion store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. Close closes it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and returns a store owning the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("bastion/pgx: connect: %w", err)
	}
	return New(pool), nil
}

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgres.Schema); err != nil {
		return fmt.Errorf("bastion/pgx: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ──────────────────────────────────────────────────
// Custom role operations
// ──────────────────────────────────────────────────

const roleColumns = `id, name, inherits_from, permissions, denied_permissions, description, metadata, created_at, updated_at`

func (s *Store) CreateRole(ctx context.Context, d *role.Definition) error {
	grants, denies, md, err := encodeRole(d)
	if err != nil {
		return fmt.Errorf("bastion: create role: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO bastion_custom_roles (`+roleColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID.String(), d.Name, d.InheritsFrom, grants, denies, d.Description, md, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %q: %w", d.Name, errs.ErrRoleExists)
		}
		return fmt.Errorf("bastion: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, name string) (*role.Definition, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM bastion_custom_roles WHERE name = $1`, name)
	d, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
		}
		return nil, fmt.Errorf("bastion: get role: %w", err)
	}
	return d, nil
}

func (s *Store) UpdateRole(ctx context.Context, d *role.Definition) error {
	grants, denies, md, err := encodeRole(d)
	if err != nil {
		return fmt.Errorf("bastion: update role: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE bastion_custom_roles
SET inherits_from = $2, permissions = $3, denied_permissions = $4, description = $5, metadata = $6, updated_at = $7
WHERE name = $1`,
		d.Name, d.InheritsFrom, grants, denies, d.Description, md, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("bastion: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %q: %w", d.Name, errs.ErrRoleNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bastion_custom_roles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("bastion: delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]*role.Definition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roleColumns+` FROM bastion_custom_roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("bastion: list roles: %w", err)
	}
	defer rows.Close()

	var result []*role.Definition
	for rows.Next() {
		d, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("bastion: list roles: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bastion: list roles: %w", err)
	}
	return result, nil
}

func encodeRole(d *role.Definition) (grants, denies, md []byte, err error) {
	if grants, err = json.Marshal(permission.Strings(d.Permissions)); err != nil {
		return nil, nil, nil, err
	}
	if denies, err = json.Marshal(permission.Strings(d.DeniedPermissions)); err != nil {
		return nil, nil, nil, err
	}
	md, err = encodeMetadata(d.Metadata)
	return grants, denies, md, err
}

func scanRole(row pgx.Row) (*role.Definition, error) {
	var (
		rawID          string
		grants, denies []byte
		md             []byte
		d              role.Definition
	)
	if err := row.Scan(&rawID, &d.Name, &d.InheritsFrom, &grants, &denies, &d.Description, &md, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID, _ = id.ParseCustomRoleID(rawID) //nolint:errcheck // stored IDs are always valid

	var err error
	if d.Permissions, err = decodePermissions("role", d.Name, grants); err != nil {
		return nil, err
	}
	if d.DeniedPermissions, err = decodePermissions("role", d.Name, denies); err != nil {
		return nil, err
	}
	if d.Metadata, err = decodeMetadata(md); err != nil {
		return nil, err
	}
	return &d, nil
}

// ──────────────────────────────────────────────────
// Credential operations
// ──────────────────────────────────────────────────

const credentialColumns = `id, name, owner_id, secret_hash, prefix, permissions, active, last_used_at, expires_at, rate_limit, metadata, created_at, updated_at`

func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	perms, err := json.Marshal(permission.Strings(c.Permissions))
	if err != nil {
		return fmt.Errorf("bastion: create credential: %w", err)
	}
	md, err := encodeMetadata(c.Metadata)
	if err != nil {
		return fmt.Errorf("bastion: create credential: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO bastion_credentials (`+credentialColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID.String(), c.Name, c.OwnerID, c.SecretHash, c.Prefix, perms, c.Active,
		c.LastUsedAt, c.ExpiresAt, c.RateLimit, md, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("bastion: create credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, credID id.CredentialID) (*credential.Credential, error) {
	return s.getCredential(ctx, `id = $1`, credID.String())
}

func (s *Store) GetCredentialByHash(ctx context.Context, hash string) (*credential.Credential, error) {
	return s.getCredential(ctx, `secret_hash = $1`, hash)
}

func (s *Store) getCredential(ctx context.Context, where string, arg any) (*credential.Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM bastion_credentials WHERE `+where, arg)
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("credential: %w", errs.ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("bastion: get credential: %w", err)
	}
	return c, nil
}

// UpdateCredential writes the mutable columns. The secret digest and
// creation time are never rewritten.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	perms, err := json.Marshal(permission.Strings(c.Permissions))
	if err != nil {
		return fmt.Errorf("bastion: update credential: %w", err)
	}
	md, err := encodeMetadata(c.Metadata)
	if err != nil {
		return fmt.Errorf("bastion: update credential: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE bastion_credentials
SET name = $2, permissions = $3, active = $4, last_used_at = $5, expires_at = $6, rate_limit = $7, metadata = $8, updated_at = $9
WHERE id = $1`,
		c.ID.String(), c.Name, perms, c.Active, c.LastUsedAt, c.ExpiresAt, c.RateLimit, md, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("bastion: update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential %s: %w", c.ID, errs.ErrCredentialNotFound)
	}
	return nil
}

func (s *Store) TouchCredential(ctx context.Context, credID id.CredentialID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bastion_credentials SET last_used_at = $2 WHERE id = $1`, credID.String(), at.UTC())
	if err != nil {
		return fmt.Errorf("bastion: touch credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential %s: %w", credID, errs.ErrCredentialNotFound)
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context, ownerID string) ([]*credential.Credential, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+credentialColumns+` FROM bastion_credentials
WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("bastion: list credentials: %w", err)
	}
	defer rows.Close()

	result := make([]*credential.Credential, 0)
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("bastion: list credentials: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bastion: list credentials: %w", err)
	}
	return result, nil
}

func (s *Store) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE bastion_credentials SET active = FALSE, updated_at = $1
WHERE active AND expires_at IS NOT NULL AND expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("bastion: deactivate expired credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCredential(row pgx.Row) (*credential.Credential, error) {
	var (
		rawID     string
		perms, md []byte
		c         credential.Credential
	)
	err := row.Scan(&rawID, &c.Name, &c.OwnerID, &c.SecretHash, &c.Prefix, &perms, &c.Active,
		&c.LastUsedAt, &c.ExpiresAt, &c.RateLimit, &md, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ID, _ = id.ParseCredentialID(rawID) //nolint:errcheck // stored IDs are always valid

	if c.Permissions, err = decodePermissions("credential", rawID, perms); err != nil {
		return nil, err
	}
	if c.Metadata, err = decodeMetadata(md); err != nil {
		return nil, err
	}
	return &c, nil
}

// ──────────────────────────────────────────────────
// JSONB helpers
// ──────────────────────────────────────────────────

func encodeMetadata(md map[string]any) ([]byte, error) {
	if md == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(md)
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	var md map[string]any
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}

func decodePermissions(entity, key string, raw []byte) ([]permission.Permission, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil, &errs.IntegrityError{Entity: entity, ID: key, Err: err}
	}
	perms, err := permission.ParseList(ss)
	if err != nil {
		return nil, &errs.IntegrityError{Entity: entity, ID: key, Err: err}
	}
	return perms, nil
}
