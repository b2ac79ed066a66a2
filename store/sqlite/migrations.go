package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Bastion store (SQLite).
var Migrations = migrate.NewGroup("bastion")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_custom_roles",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_custom_roles (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL UNIQUE,
    inherits_from       TEXT NOT NULL,
    permissions         TEXT NOT NULL DEFAULT '[]',
    denied_permissions  TEXT NOT NULL DEFAULT '[]',
    description         TEXT NOT NULL DEFAULT '',
    metadata            TEXT NOT NULL DEFAULT '{}',
    created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_custom_roles_parent ON bastion_custom_roles (inherits_from);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_custom_roles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credentials",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_credentials (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    owner_id      TEXT NOT NULL,
    secret_hash   TEXT NOT NULL UNIQUE,
    prefix        TEXT NOT NULL,
    permissions   TEXT NOT NULL DEFAULT '[]',
    active        INTEGER NOT NULL DEFAULT 1,
    last_used_at  DATETIME,
    expires_at    DATETIME,
    rate_limit    INTEGER NOT NULL DEFAULT 0,
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_credentials_owner ON bastion_credentials (owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_bastion_credentials_expiry ON bastion_credentials (active, expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_credentials`)
				return err
			},
		},
	)
}
