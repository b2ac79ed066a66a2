package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Bastion store (PostgreSQL).
var Migrations = migrate.NewGroup("bastion")

// Schema is the PostgreSQL DDL shared with the pgx backend.
const Schema = `
CREATE TABLE IF NOT EXISTS bastion_custom_roles (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL UNIQUE,
    inherits_from       TEXT NOT NULL,
    permissions         JSONB NOT NULL DEFAULT '[]',
    denied_permissions  JSONB NOT NULL DEFAULT '[]',
    description         TEXT NOT NULL DEFAULT '',
    metadata            JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bastion_custom_roles_parent ON bastion_custom_roles (inherits_from);

CREATE TABLE IF NOT EXISTS bastion_credentials (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    owner_id      TEXT NOT NULL,
    secret_hash   TEXT NOT NULL UNIQUE,
    prefix        TEXT NOT NULL,
    permissions   JSONB NOT NULL DEFAULT '[]',
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    last_used_at  TIMESTAMPTZ,
    expires_at    TIMESTAMPTZ,
    rate_limit    INTEGER NOT NULL DEFAULT 0,
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bastion_credentials_owner ON bastion_credentials (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bastion_credentials_expiry ON bastion_credentials (expires_at) WHERE active;
`

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_bastion_tables",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, Schema)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS bastion_credentials;
DROP TABLE IF EXISTS bastion_custom_roles;
`)
				return err
			},
		},
	)
}
