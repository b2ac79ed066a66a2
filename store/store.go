// Package store defines the aggregate persistence interface. The role and
// credential packages each define their own store interface; the composite
// Store composes them. Backends: Memory, SQLite, Postgres, MongoDB (all via
// grove except Memory) and a hand-written pgx backend.
package store

import (
	"context"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/role"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem store.
type Store interface {
	role.Store
	credential.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
