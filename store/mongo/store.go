// Package mongo provides a MongoDB implementation of the Bastion composite
// store backed by grove's mongo driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Collection name constants.
const (
	colRoles       = "bastion_custom_roles"
	colCredentials = "bastion_credentials"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Bastion store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all bastion collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("bastion/mongo: migrate %s indexes: %w", col, err)
		}
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

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRoles: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "inherits_from", Value: 1}}},
		},
		colCredentials: {
			{
				Keys:    bson.D{{Key: "secret_hash", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "expires_at", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Custom role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, d *role.Definition) error {
	if _, err := s.mdb.NewInsert(roleToModel(d)).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("role %q: %w", d.Name, errs.ErrRoleExists)
		}
		return fmt.Errorf("bastion: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, name string) (*role.Definition, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
		}
		return nil, fmt.Errorf("bastion: get role: %w", err)
	}
	return roleFromModel(&m)
}

func (s *Store) UpdateRole(ctx context.Context, d *role.Definition) error {
	m := roleToModel(d)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: update role: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("role %q: %w", d.Name, errs.ErrRoleNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, name string) error {
	res, err := s.mdb.NewDelete((*roleModel)(nil)).
		Filter(bson.M{"name": name}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: delete role: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]*role.Definition, error) {
	var models []roleModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "name", Value: 1}}).
		Scan(ctx)
	if err != nil {
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
	if _, err := s.mdb.NewInsert(credentialToModel(c)).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: create credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, credID id.CredentialID) (*credential.Credential, error) {
	return s.findCredential(ctx, bson.M{"_id": credID.String()})
}

func (s *Store) GetCredentialByHash(ctx context.Context, hash string) (*credential.Credential, error) {
	return s.findCredential(ctx, bson.M{"secret_hash": hash})
}

func (s *Store) findCredential(ctx context.Context, filter bson.M) (*credential.Credential, error) {
	var m credentialModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("credential: %w", errs.ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("bastion: get credential: %w", err)
	}
	return credentialFromModel(&m)
}

// UpdateCredential writes the mutable fields. The secret digest and
// creation time are never rewritten.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	m := credentialToModel(c)
	set := bson.M{
		"name":        m.Name,
		"permissions": m.Permissions,
		"active":      m.Active,
		"rate_limit":  m.RateLimit,
		"metadata":    m.Metadata,
		"updated_at":  m.UpdatedAt,
	}
	unset := bson.M{}
	if m.LastUsedAt != nil {
		set["last_used_at"] = *m.LastUsedAt
	} else {
		unset["last_used_at"] = ""
	}
	if m.ExpiresAt != nil {
		set["expires_at"] = *m.ExpiresAt
	} else {
		unset["expires_at"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.mdb.Collection(colCredentials).UpdateOne(ctx, bson.M{"_id": m.ID}, update)
	if err != nil {
		return fmt.Errorf("bastion: update credential: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("credential %s: %w", m.ID, errs.ErrCredentialNotFound)
	}
	return nil
}

func (s *Store) TouchCredential(ctx context.Context, credID id.CredentialID, at time.Time) error {
	res, err := s.mdb.Collection(colCredentials).UpdateOne(ctx,
		bson.M{"_id": credID.String()},
		bson.M{"$set": bson.M{"last_used_at": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("bastion: touch credential: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("credential %s: %w", credID, errs.ErrCredentialNotFound)
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context, ownerID string) ([]*credential.Credential, error) {
	var models []credentialModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner_id": ownerID}).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
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
	res, err := s.mdb.Collection(colCredentials).UpdateMany(ctx,
		bson.M{
			"active": true,
			"expires_at": bson.M{
				"$ne":  nil,
				"$lte": now.UTC(),
			},
		},
		bson.M{"$set": bson.M{"active": false, "updated_at": now.UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("bastion: deactivate expired credentials: %w", err)
	}
	return res.ModifiedCount, nil
}
