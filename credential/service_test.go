package credential_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/ratelimit"
	"github.com/xraph/bastion/store/memory"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func newService(t *testing.T, st credential.Store, opts ...credential.Option) (*credential.Service, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)}
	limiter := ratelimit.New(
		ratelimit.NewMemoryStore(ratelimit.WithCleanupInterval(0)),
		ratelimit.WithClock(clock.now),
	)
	opts = append([]credential.Option{credential.WithClock(clock.now), credential.WithLimiter(limiter)}, opts...)
	return credential.NewService(st, opts...), clock
}

func intPtr(n int) *int { return &n }

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, memory.New())

	issued, err := svc.Issue(ctx, "user_1", credential.IssueRequest{
		Name:        "deploy bot",
		Permissions: []string{"content:read", "content:delete"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(issued.Secret, "bst_") || len(issued.Secret) != len("bst_")+64 {
		t.Fatalf("unexpected secret format %q", issued.Secret)
	}
	if issued.Credential.Prefix != issued.Secret[:12] {
		t.Fatalf("display prefix %q is not the head of the secret", issued.Credential.Prefix)
	}
	if issued.Credential.SecretHash != "" {
		t.Fatal("issued credential must not expose the digest")
	}
	if issued.Credential.ID.Prefix() != id.PrefixCredential {
		t.Fatalf("expected key_ id, got %s", issued.Credential.ID)
	}
	if issued.Credential.RateLimit != credential.DefaultRateLimit {
		t.Fatalf("expected default rate limit, got %d", issued.Credential.RateLimit)
	}

	res, err := svc.Validate(ctx, issued.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got reason %q", res.Reason)
	}
	if res.Credential.LastUsedAt == nil {
		t.Fatal("successful validation should record last use")
	}
	if res.RateLimit == nil || res.RateLimit.Remaining != credential.DefaultRateLimit-1 {
		t.Fatalf("unexpected rate limit result %+v", res.RateLimit)
	}
}

func TestValidateUnknownSecret(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, memory.New())

	for _, secret := range []string{"", "bst_", "nope_abc", "bst_" + strings.Repeat("0", 64)} {
		res, err := svc.Validate(ctx, secret)
		if err != nil {
			t.Fatal(err)
		}
		if res.Valid || res.Reason != credential.ReasonNotFound {
			t.Fatalf("secret %q: expected not_found, got %+v", secret, res)
		}
	}
}

func TestIssueRejectsInvalidPermissions(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc, _ := newService(t, st)

	_, err := svc.Issue(ctx, "user_1", credential.IssueRequest{
		Name:        "bad",
		Permissions: []string{"content:read", "content:obliterate"},
	})
	if !errors.Is(err, errs.ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission, got %v", err)
	}
	var ve *errs.ValidationError
	if !errors.As(err, &ve) || ve.Value != "content:obliterate" {
		t.Fatalf("error should name the offending permission, got %v", err)
	}

	list, _ := st.ListCredentials(ctx, "user_1")
	if len(list) != 0 {
		t.Fatal("a rejected issue must not write anything")
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, memory.New())

	issued, err := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "ci"})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Revoke(ctx, "user_2", issued.Credential.ID); !errors.Is(err, errs.ErrCredentialNotFound) {
		t.Fatalf("other owners must not revoke, got %v", err)
	}
	res, _ := svc.Validate(ctx, issued.Secret)
	if !res.Valid {
		t.Fatal("credential should survive a foreign revoke attempt")
	}

	if err := svc.Revoke(ctx, "user_1", issued.Credential.ID); err != nil {
		t.Fatal(err)
	}
	res, err = svc.Validate(ctx, issued.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != credential.ReasonRevoked {
		t.Fatalf("expected revoked, got %+v", res)
	}

	if err := svc.Revoke(ctx, "user_1", issued.Credential.ID); err != nil {
		t.Fatalf("revoking twice should be a no-op, got %v", err)
	}
}

func TestRotatePreservesSettings(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, memory.New())

	expires := clock.t.Add(30 * 24 * time.Hour)
	issued, err := svc.Issue(ctx, "user_1", credential.IssueRequest{
		Name:        "deploy bot",
		Permissions: []string{"content:read", "content:news:update"},
		ExpiresAt:   &expires,
		RateLimit:   intPtr(15),
		Metadata:    map[string]any{"env": "prod"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := svc.Rotate(ctx, "user_1", issued.Credential.ID)
	if err != nil {
		t.Fatal(err)
	}

	old, _ := svc.Validate(ctx, issued.Secret)
	if old.Valid || old.Reason != credential.ReasonRevoked {
		t.Fatalf("old secret should be revoked, got %+v", old)
	}
	fresh, _ := svc.Validate(ctx, rotated.Secret)
	if !fresh.Valid {
		t.Fatalf("new secret should validate, got %+v", fresh)
	}

	c := rotated.Credential
	if c.Name != "deploy bot (rotated)" {
		t.Fatalf("unexpected name %q", c.Name)
	}
	if len(c.Permissions) != 2 || c.Permissions[1] != permission.MustParse("content:news:update") {
		t.Fatalf("permissions not preserved: %v", c.Permissions)
	}
	if c.ExpiresAt == nil || !c.ExpiresAt.Equal(expires) {
		t.Fatal("expiry not preserved")
	}
	if c.RateLimit != 15 {
		t.Fatalf("rate limit not preserved: %d", c.RateLimit)
	}
	if c.Metadata["env"] != "prod" || c.Metadata["rotated_from"] != issued.Credential.ID.String() {
		t.Fatalf("unexpected metadata %v", c.Metadata)
	}

	again, err := svc.Rotate(ctx, "user_1", c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Credential.Name != "deploy bot (rotated)" {
		t.Fatalf("rotation marker should not stack, got %q", again.Credential.Name)
	}

	if _, err := svc.Rotate(ctx, "user_1", issued.Credential.ID); !errors.Is(err, errs.ErrCredentialNotFound) {
		t.Fatalf("rotating a revoked credential should fail, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, memory.New())

	soon := clock.t.Add(time.Hour)
	var zero time.Time

	expiring, _ := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "temp", ExpiresAt: &soon})
	forever, _ := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "forever", ExpiresAt: &zero})

	clock.t = clock.t.Add(2 * time.Hour)

	res, _ := svc.Validate(ctx, expiring.Secret)
	if res.Valid || res.Reason != credential.ReasonExpired {
		t.Fatalf("expected expired, got %+v", res)
	}
	res, _ = svc.Validate(ctx, forever.Secret)
	if !res.Valid {
		t.Fatalf("a zero expiry never expires, got %+v", res)
	}

	n, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired credential, got %d", n)
	}
	res, _ = svc.Validate(ctx, expiring.Secret)
	if res.Reason != credential.ReasonRevoked {
		t.Fatalf("cleaned-up credential should read as inactive, got %+v", res)
	}
}

func TestExpiryIsNormalized(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, memory.New())

	var zero time.Time
	forever, err := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "forever", ExpiresAt: &zero})
	if err != nil {
		t.Fatal(err)
	}
	if forever.Credential.ExpiresAt != nil {
		t.Fatalf("a zero expiry should be stored as no expiry, got %v", forever.Credential.ExpiresAt)
	}

	soon := clock.t.Add(time.Hour)
	dated, err := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "dated", ExpiresAt: &soon})
	if err != nil {
		t.Fatal(err)
	}
	soon = soon.Add(24 * time.Hour)
	got, _ := svc.Get(ctx, "user_1", dated.Credential.ID)
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(clock.t.Add(time.Hour)) {
		t.Fatalf("issued expiry must not alias the caller's value, got %v", got.ExpiresAt)
	}

	updated, err := svc.Update(ctx, "user_1", dated.Credential.ID, credential.UpdateRequest{ExpiresAt: &zero})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ExpiresAt != nil {
		t.Fatalf("updating to a zero expiry should clear it, got %v", updated.ExpiresAt)
	}

	clock.t = clock.t.Add(48 * time.Hour)
	if n, _ := svc.CleanupExpired(ctx); n != 0 {
		t.Fatalf("credentials without expiry must survive cleanup, got %d deactivated", n)
	}
}

func TestNegativeRateLimitRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, memory.New())

	if _, err := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "bad", RateLimit: intPtr(-1)}); !errors.Is(err, errs.ErrInvalidRateLimit) {
		t.Fatalf("expected ErrInvalidRateLimit from Issue, got %v", err)
	}
	if list, _ := svc.List(ctx, "user_1"); len(list) != 0 {
		t.Fatal("a rejected issue must not persist anything")
	}

	issued, _ := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "ok", RateLimit: intPtr(5)})
	if _, err := svc.Update(ctx, "user_1", issued.Credential.ID, credential.UpdateRequest{RateLimit: intPtr(-3)}); !errors.Is(err, errs.ErrInvalidRateLimit) {
		t.Fatalf("expected ErrInvalidRateLimit from Update, got %v", err)
	}
	got, _ := svc.Get(ctx, "user_1", issued.Credential.ID)
	if got.RateLimit != 5 {
		t.Fatalf("failed update must not change the rate limit, got %d", got.RateLimit)
	}
}

func TestRateLimited(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, memory.New())

	issued, _ := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "tight", RateLimit: intPtr(2)})

	for i := range 2 {
		res, _ := svc.Validate(ctx, issued.Secret)
		if !res.Valid {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	res, err := svc.Validate(ctx, issued.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != credential.ReasonRateLimited {
		t.Fatalf("expected rate_limited, got %+v", res)
	}
	if res.RateLimit == nil || res.RateLimit.Remaining != 0 || res.RateLimit.Limit != 2 {
		t.Fatalf("unexpected rate limit details %+v", res.RateLimit)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, memory.New())

	issued, _ := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "ci", Permissions: []string{"content:read"}})

	_, err := svc.Update(ctx, "user_1", issued.Credential.ID, credential.UpdateRequest{
		Permissions: []string{"media:read", "bogus"},
	})
	if !errors.Is(err, errs.ErrInvalidPermission) {
		t.Fatalf("expected ErrInvalidPermission, got %v", err)
	}
	got, _ := svc.Get(ctx, "user_1", issued.Credential.ID)
	if len(got.Permissions) != 1 || got.Permissions[0] != permission.ContentRead {
		t.Fatal("failed update must not change permissions")
	}

	name := "ci-main"
	updated, err := svc.Update(ctx, "user_1", issued.Credential.ID, credential.UpdateRequest{
		Name:        &name,
		Permissions: []string{"media:read"},
		RateLimit:   intPtr(0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "ci-main" || updated.Permissions[0] != permission.MediaRead || updated.RateLimit != 0 {
		t.Fatalf("unexpected credential after update %+v", updated)
	}

	if _, err := svc.Update(ctx, "user_2", issued.Credential.ID, credential.UpdateRequest{Name: &name}); !errors.Is(err, errs.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound for other owner, got %v", err)
	}

	list, _ := svc.List(ctx, "user_1")
	if len(list) != 1 || list[0].SecretHash != "" {
		t.Fatalf("list should return 1 credential without digest, got %d", len(list))
	}
}

// touchFailStore fails every TouchCredential call.
type touchFailStore struct {
	*memory.Store
}

func (touchFailStore) TouchCredential(context.Context, id.CredentialID, time.Time) error {
	return errors.New("disk full")
}

func TestTouchFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	svc, _ := newService(t, touchFailStore{memory.New()}, credential.WithLogger(logger))

	issued, err := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "ci"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Validate(ctx, issued.Secret)
	if err != nil {
		t.Fatalf("touch failure must not surface, got %v", err)
	}
	if !res.Valid {
		t.Fatalf("touch failure must not change the outcome, got %+v", res)
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Fatal("touch failure should be logged")
	}
}

// corruptStore returns an integrity error for every hash lookup.
type corruptStore struct {
	*memory.Store
}

func (corruptStore) GetCredentialByHash(context.Context, string) (*credential.Credential, error) {
	_, err := credential.DecodePermissions("key_x", []string{"content:obliterate"})
	return nil, err
}

func TestIntegrityErrorIsHard(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, corruptStore{memory.New()})

	res, err := svc.Validate(ctx, "bst_"+strings.Repeat("a", 64))
	if res != nil {
		t.Fatalf("corrupt data must not yield a result, got %+v", res)
	}
	if !errors.Is(err, errs.ErrCorruptPermissions) {
		t.Fatalf("expected ErrCorruptPermissions, got %v", err)
	}
}

type recordingHooks struct {
	issued, rotated, revoked, validated int
	expired                             int64
}

func (h *recordingHooks) EmitCredentialIssued(context.Context, *credential.Credential) { h.issued++ }
func (h *recordingHooks) EmitCredentialRotated(context.Context, *credential.Credential, *credential.Credential) {
	h.rotated++
}
func (h *recordingHooks) EmitCredentialRevoked(context.Context, *credential.Credential) { h.revoked++ }
func (h *recordingHooks) EmitCredentialValidated(context.Context, *credential.ValidationResult) {
	h.validated++
}
func (h *recordingHooks) EmitCredentialsExpired(_ context.Context, n int64) { h.expired += n }

func TestHooks(t *testing.T) {
	ctx := context.Background()
	hooks := &recordingHooks{}
	svc, _ := newService(t, memory.New(), credential.WithHooks(hooks))

	issued, _ := svc.Issue(ctx, "user_1", credential.IssueRequest{Name: "ci"})
	_, _ = svc.Validate(ctx, issued.Secret)
	rotated, _ := svc.Rotate(ctx, "user_1", issued.Credential.ID)
	_ = svc.Revoke(ctx, "user_1", rotated.Credential.ID)

	if hooks.issued != 2 || hooks.validated != 1 || hooks.rotated != 1 || hooks.revoked != 1 {
		t.Fatalf("unexpected hook counts %+v", hooks)
	}
}
