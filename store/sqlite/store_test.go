package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, filepath.Join(t.TempDir(), "bastion.db")); err != nil {
		t.Fatal(err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		t.Fatal(err)
	}
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

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
	if got.InheritsFrom != "editor" || len(got.DeniedPermissions) != 1 || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected role %+v", got)
	}

	if err := s.DeleteRole(ctx, "content-manager"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRole(ctx, "content-manager"); !errors.Is(err, errs.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	expires := now.Add(time.Hour)

	c := &credential.Credential{
		ID:          id.NewCredentialID(),
		Name:        "deploy",
		OwnerID:     "user_1",
		SecretHash:  "digest-1",
		Prefix:      "bst_0123456",
		Permissions: []permission.Permission{permission.ContentRead},
		Active:      true,
		ExpiresAt:   &expires,
		RateLimit:   60,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateCredential(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCredentialByHash(ctx, "digest-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != c.ID.String() || got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected credential %+v", got)
	}
	if got.LastUsedAt != nil {
		t.Fatal("a credential never used should have no last-used time")
	}

	if err := s.TouchCredential(ctx, c.ID, now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetCredential(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected last-used time %v", got.LastUsedAt)
	}

	if _, err := s.GetCredentialByHash(ctx, "missing"); !errors.Is(err, errs.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestCleanupSkipsCredentialsWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	clock := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	svc := credential.NewService(s, credential.WithClock(func() time.Time { return clock }))

	var zero time.Time
	soon := clock.Add(time.Hour)
	forever, err := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "forever", ExpiresAt: &zero})
	if err != nil {
		t.Fatal(err)
	}
	never, err := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "never"})
	if err != nil {
		t.Fatal(err)
	}
	dated, err := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "dated", ExpiresAt: &soon})
	if err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(2 * time.Hour)
	n, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected only the dated credential to be deactivated, got %d", n)
	}

	for _, secret := range []string{forever.Secret, never.Secret} {
		res, err := svc.Validate(ctx, secret)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Valid {
			t.Fatalf("credential without expiry should stay valid, got %+v", res)
		}
	}
	res, err := svc.Validate(ctx, dated.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != credential.ReasonRevoked {
		t.Fatalf("deactivated credential should read as revoked, got %+v", res)
	}
}

func TestCorruptPermissionsAreIntegrityErrors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	c := &credential.Credential{
		ID:         id.NewCredentialID(),
		Name:       "legacy",
		OwnerID:    "user_1",
		SecretHash: "digest-2",
		Prefix:     "bst_abcdefg",
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.CreateCredential(ctx, c); err != nil {
		t.Fatal(err)
	}
	if _, err := s.sdb.Exec(ctx,
		`UPDATE bastion_credentials SET permissions = ? WHERE id = ?`,
		`["content:read","root:everything"]`, c.ID.String(),
	); err != nil {
		t.Fatal(err)
	}

	_, err := s.GetCredentialByHash(ctx, "digest-2")
	if !errors.Is(err, errs.ErrCorruptPermissions) {
		t.Fatalf("expected ErrCorruptPermissions, got %v", err)
	}
	var ie *errs.IntegrityError
	if !errors.As(err, &ie) || ie.ID != c.ID.String() {
		t.Fatalf("integrity error should name the credential, got %v", err)
	}
}
