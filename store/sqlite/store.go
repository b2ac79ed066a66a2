// Package sqlite provides a SQLite implementation of the Bastion composite
// store using grove ORM with Go-based migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the composite Bastion store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("bastion/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bastion/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Custom role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, d *role.Definition) error {
	n, err := s.sdb.NewSelect((*roleModel)(nil)).Where("name = ?", d.Name).Count(ctx)
	if err != nil {
		return fmt.Errorf("bastion: create role: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("role %q: %w", d.Name, errs.ErrRoleExists)
	}
	m, err := roleToModel(d)
	if err != nil {
		return fmt.Errorf("bastion: create role: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, name string) (*role.Definition, error) {
	m := new(roleModel)
	err := s.sdb.NewSelect(m).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
		}
		return nil, fmt.Errorf("bastion: get role: %w", err)
	}
	return roleFromModel(m)
}

func (s *Store) UpdateRole(ctx context.Context, d *role.Definition) error {
	m, err := roleToModel(d)
	if err != nil {
		return fmt.Errorf("bastion: update role: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: update role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %q: %w", d.Name, errs.ErrRoleNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, name string) error {
	res, err := s.sdb.NewDelete((*roleModel)(nil)).
		Where("name = ?", name).Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]*role.Definition, error) {
	var models []roleModel
	if err := s.sdb.NewSelect(&models).OrderExpr("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list roles: %w", err)
	}
	result := make([]*role.Definition, len(models))
	for i := range models {
		d, err := roleFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("bastion: list roles: %w", err)
		}
		result[i] = d
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Credential operations
// ──────────────────────────────────────────────────

func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	m, err := credentialToModel(c)
	if err != nil {
		return fmt.Errorf("bastion: create credential: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: create credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, credID id.CredentialID) (*credential.Credential, error) {
	return s.getCredential(ctx, "id = ?", credID.String())
}

func (s *Store) GetCredentialByHash(ctx context.Context, hash string) (*credential.Credential, error) {
	return s.getCredential(ctx, "secret_hash = ?", hash)
}

func (s *Store) getCredential(ctx context.Context, where string, arg any) (*credential.Credential, error) {
	m := new(credentialModel)
	err := s.sdb.NewSelect(m).Where(where, arg).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("credential: %w", errs.ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("bastion: get credential: %w", err)
	}
	return credentialFromModel(m)
}

// UpdateCredential writes the mutable columns. The secret digest and
// creation time are never rewritten.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	m, err := credentialToModel(c)
	if err != nil {
		return fmt.Errorf("bastion: update credential: %w", err)
	}
	res, err := s.sdb.NewUpdate((*credentialModel)(nil)).
		Set("name = ?", m.Name).
		Set("permissions = ?", m.Permissions).
		Set("active = ?", m.Active).
		Set("last_used_at = ?", m.LastUsedAt).
		Set("expires_at = ?", m.ExpiresAt).
		Set("rate_limit = ?", m.RateLimit).
		Set("metadata = ?", m.Metadata).
		Set("updated_at = ?", m.UpdatedAt).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: update credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("credential %s: %w", m.ID, errs.ErrCredentialNotFound)
	}
	return nil
}

func (s *Store) TouchCredential(ctx context.Context, credID id.CredentialID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*credentialModel)(nil)).
		Set("last_used_at = ?", at.UTC()).
		Where("id = ?", credID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: touch credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("credential %s: %w", credID, errs.ErrCredentialNotFound)
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context, ownerID string) ([]*credential.Credential, error) {
	var models []credentialModel
	err := s.sdb.NewSelect(&models).
		Where("owner_id = ?", ownerID).
		OrderExpr("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bastion: list credentials: %w", err)
	}
	result := make([]*credential.Credential, len(models))
	for i := range models {
		c, err := credentialFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("bastion: list credentials: %w", err)
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.sdb.NewUpdate((*credentialModel)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", now.UTC()).
		Where("active = ?", true).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: deactivate expired credentials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bastion: deactivate expired credentials rows: %w", err)
	}
	return n, nil
}
