//go:build integration

package pgxstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

func startStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("bastion"),
		tcpostgres.WithUsername("bastion"),
		tcpostgres.WithPassword("bastion"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	// Migrations are idempotent.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	return s
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	s := startStore(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	d := &role.Definition{
		ID:                id.NewCustomRoleID(),
		Name:              "content-manager",
		InheritsFrom:      "editor",
		Permissions:       []permission.Permission{permission.UserRead},
		DeniedPermissions: []permission.Permission{permission.ContentDelete},
		Metadata:          map[string]any{"team": "docs"},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.CreateRole(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateRole(ctx, d); !errors.Is(err, errs.ErrRoleExists) {
		t.Fatalf("expected ErrRoleExists, got %v", err)
	}

	got, err := s.GetRole(ctx, "content-manager")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != d.ID.String() || got.InheritsFrom != "editor" || len(got.DeniedPermissions) != 1 || got.Metadata["team"] != "docs" {
		t.Fatalf("unexpected role %+v", got)
	}

	d.Description = "manages content"
	if err := s.UpdateRole(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateRole(ctx, &role.Definition{Name: "ghost"}); !errors.Is(err, errs.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	aud := &role.Definition{ID: id.NewCustomRoleID(), Name: "auditor", InheritsFrom: "viewer", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateRole(ctx, aud); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListRoles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "auditor" {
		t.Fatalf("expected roles ordered by name, got %d", len(list))
	}

	if err := s.DeleteRole(ctx, "auditor"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRole(ctx, "auditor"); !errors.Is(err, errs.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	s := startStore(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	past := now.Add(-time.Hour)
	c := &credential.Credential{
		ID:          id.NewCredentialID(),
		Name:        "ci",
		OwnerID:     "user-1",
		SecretHash:  "hash-1",
		Prefix:      "bst_abcd",
		Permissions: []permission.Permission{permission.MustParse("content:news:read")},
		Active:      true,
		ExpiresAt:   &past,
		RateLimit:   60,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateCredential(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCredentialByHash(ctx, "hash-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != c.ID || len(got.Permissions) != 1 || got.Permissions[0] != "content:news:read" {
		t.Fatalf("unexpected credential %+v", got)
	}

	if err := s.TouchCredential(ctx, c.ID, now); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetCredential(ctx, c.ID)
	if got.LastUsedAt == nil {
		t.Fatal("touch did not record last use")
	}

	n, err := s.DeactivateExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deactivated credential, got %d", n)
	}
	got, _ = s.GetCredential(ctx, c.ID)
	if got.Active {
		t.Fatal("expired credential is still active")
	}

	list, err := s.ListCredentials(ctx, "user-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v (%d)", err, len(list))
	}

	if _, err := s.pool.Exec(ctx, `UPDATE bastion_credentials SET permissions = '["root:everything"]' WHERE id = $1`, c.ID.String()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCredential(ctx, c.ID); !errors.Is(err, errs.ErrCorruptPermissions) {
		t.Fatalf("expected ErrCorruptPermissions, got %v", err)
	}
}
