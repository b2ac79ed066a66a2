// Package memory provides an in-memory implementation of the Bastion
// composite store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

// Compile-time interface checks.
var (
	_ role.Store       = (*Store)(nil)
	_ credential.Store = (*Store)(nil)
)

// credentialRecord mirrors the persisted row: permissions are kept as raw
// strings and decoded on every read, the same as the SQL backends.
type credentialRecord struct {
	cred        credential.Credential
	permissions []string
}

// Store is a thread-safe in-memory store for all Bastion entities.
type Store struct {
	mu sync.RWMutex

	roles       map[string]*role.Definition
	credentials map[string]*credentialRecord
	byHash      map[string]string // secret hash -> credential ID
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		roles:       make(map[string]*role.Definition),
		credentials: make(map[string]*credentialRecord),
		byHash:      make(map[string]string),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Role Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(_ context.Context, d *role.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[d.Name]; ok {
		return fmt.Errorf("role %q: %w", d.Name, errs.ErrRoleExists)
	}
	s.roles[d.Name] = d.Clone()
	return nil
}

func (s *Store) GetRole(_ context.Context, name string) (*role.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.roles[name]
	if !ok {
		return nil, fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
	}
	return d.Clone(), nil
}

func (s *Store) UpdateRole(_ context.Context, d *role.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[d.Name]; !ok {
		return fmt.Errorf("role %q: %w", d.Name, errs.ErrRoleNotFound)
	}
	s.roles[d.Name] = d.Clone()
	return nil
}

func (s *Store) DeleteRole(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[name]; !ok {
		return fmt.Errorf("role %q: %w", name, errs.ErrRoleNotFound)
	}
	delete(s.roles, name)
	return nil
}

func (s *Store) ListRoles(_ context.Context) ([]*role.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*role.Definition, 0, len(s.roles))
	for _, d := range s.roles {
		result = append(result, d.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ──────────────────────────────────────────────────
// Credential Store
// ──────────────────────────────────────────────────

func (s *Store) CreateCredential(_ context.Context, c *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.ID.String()
	if _, ok := s.credentials[key]; ok {
		return fmt.Errorf("credential %s: already exists", key)
	}
	if _, ok := s.byHash[c.SecretHash]; ok {
		return fmt.Errorf("credential %s: duplicate secret hash", key)
	}
	s.credentials[key] = toRecord(c)
	s.byHash[c.SecretHash] = key
	return nil
}

func (s *Store) GetCredential(_ context.Context, credID id.CredentialID) (*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.credentials[credID.String()]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", credID, errs.ErrCredentialNotFound)
	}
	return fromRecord(rec)
}

func (s *Store) GetCredentialByHash(_ context.Context, hash string) (*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("credential hash: %w", errs.ErrCredentialNotFound)
	}
	return fromRecord(s.credentials[key])
}

func (s *Store) UpdateCredential(_ context.Context, c *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.ID.String()
	prev, ok := s.credentials[key]
	if !ok {
		return fmt.Errorf("credential %s: %w", key, errs.ErrCredentialNotFound)
	}
	rec := toRecord(c)
	// The secret digest and creation time never change after insert.
	rec.cred.SecretHash = prev.cred.SecretHash
	rec.cred.CreatedAt = prev.cred.CreatedAt
	s.credentials[key] = rec
	return nil
}

func (s *Store) TouchCredential(_ context.Context, credID id.CredentialID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.credentials[credID.String()]
	if !ok {
		return fmt.Errorf("credential %s: %w", credID, errs.ErrCredentialNotFound)
	}
	t := at
	rec.cred.LastUsedAt = &t
	return nil
}

func (s *Store) ListCredentials(_ context.Context, ownerID string) ([]*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*credential.Credential, 0)
	for _, rec := range s.credentials {
		if rec.cred.OwnerID != ownerID {
			continue
		}
		c, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.credentials {
		if rec.cred.Active && rec.cred.Expired(now) {
			rec.cred.Active = false
			rec.cred.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func toRecord(c *credential.Credential) *credentialRecord {
	cp := c.Clone()
	perms := permission.Strings(cp.Permissions)
	cp.Permissions = nil
	return &credentialRecord{cred: *cp, permissions: perms}
}

func fromRecord(rec *credentialRecord) (*credential.Credential, error) {
	c := rec.cred.Clone()
	perms, err := credential.DecodePermissions(c.ID.String(), rec.permissions)
	if err != nil {
		return nil, err
	}
	c.Permissions = perms
	return c, nil
}
