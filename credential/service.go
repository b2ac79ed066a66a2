package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/ratelimit"
)

// DefaultRateLimit is the requests-per-window limit for new credentials.
const DefaultRateLimit = 60

// RotatedSuffix is appended to the name of a rotated credential.
const RotatedSuffix = " (rotated)"

// Hooks receives credential lifecycle events. *plugin.Registry satisfies it.
type Hooks interface {
	EmitCredentialIssued(ctx context.Context, c *Credential)
	EmitCredentialRotated(ctx context.Context, previous, next *Credential)
	EmitCredentialRevoked(ctx context.Context, c *Credential)
	EmitCredentialValidated(ctx context.Context, res *ValidationResult)
	EmitCredentialsExpired(ctx context.Context, count int64)
}

// Service manages the credential lifecycle.
type Service struct {
	store            Store
	limiter          *ratelimit.Limiter
	hooks            Hooks
	logger           *slog.Logger
	now              func() time.Time
	secretPrefix     string
	displayLength    int
	defaultRateLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter sets the rate limiter consulted by Validate.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithHooks sets the lifecycle event receiver.
func WithHooks(h Hooks) Option {
	return func(s *Service) { s.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSecretPrefix overrides DefaultSecretPrefix.
func WithSecretPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.secretPrefix = prefix
		}
	}
}

// WithDisplayPrefixLength overrides DefaultDisplayPrefixLength.
func WithDisplayPrefixLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.displayLength = n
		}
	}
}

// WithDefaultRateLimit sets the limit applied when IssueRequest.RateLimit is nil.
func WithDefaultRateLimit(n int) Option {
	return func(s *Service) { s.defaultRateLimit = n }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:            store,
		logger:           slog.Default(),
		now:              time.Now,
		secretPrefix:     DefaultSecretPrefix,
		displayLength:    DefaultDisplayPrefixLength,
		defaultRateLimit: DefaultRateLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithClock(s.now))
	}
	return s
}

// Limiter returns the rate limiter consulted by Validate.
func (s *Service) Limiter() *ratelimit.Limiter { return s.limiter }

// SecretPrefix returns the marker every issued secret starts with.
func (s *Service) SecretPrefix() string { return s.secretPrefix }

// Issue creates a credential for ownerID. Every requested permission must
// be in the enumeration; a single invalid entry fails the whole call
// before anything is written.
func (s *Service) Issue(ctx context.Context, ownerID string, req IssueRequest) (*Issued, error) {
	if ownerID == "" {
		return nil, errors.New("issue credential: owner id is required")
	}
	perms, err := permission.ParseList(req.Permissions)
	if err != nil {
		return nil, fmt.Errorf("issue credential: %w", err)
	}

	limit := s.defaultRateLimit
	if req.RateLimit != nil {
		limit = *req.RateLimit
	}
	if limit < 0 {
		return nil, fmt.Errorf("issue credential: %w: %d", errs.ErrInvalidRateLimit, limit)
	}

	return s.issue(ctx, &Credential{
		Name:        req.Name,
		OwnerID:     ownerID,
		Permissions: perms,
		ExpiresAt:   normalizeExpiry(req.ExpiresAt),
		RateLimit:   limit,
		Metadata:    maps.Clone(req.Metadata),
	})
}

// issue fills in identity and secret fields of c and persists it.
func (s *Service) issue(ctx context.Context, c *Credential) (*Issued, error) {
	secret, err := newSecret(s.secretPrefix)
	if err != nil {
		return nil, fmt.Errorf("issue credential: %w", err)
	}

	now := s.now().UTC()
	c.ID = id.NewCredentialID()
	c.SecretHash = HashSecret(secret)
	c.Prefix = displayPrefix(secret, s.displayLength)
	c.Active = true
	c.LastUsedAt = nil
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.store.CreateCredential(ctx, c); err != nil {
		return nil, fmt.Errorf("issue credential: %w", err)
	}

	out := c.public()
	if s.hooks != nil {
		s.hooks.EmitCredentialIssued(ctx, out)
	}
	return &Issued{Credential: out, Secret: secret}, nil
}

// Validate checks a presented secret. Authorization outcomes are reported
// in the result; the error is non-nil only when the store or limiter fails.
func (s *Service) Validate(ctx context.Context, secret string) (*ValidationResult, error) {
	res, err := s.validate(ctx, secret)
	if err != nil {
		return nil, err
	}
	if s.hooks != nil {
		s.hooks.EmitCredentialValidated(ctx, res)
	}
	return res, nil
}

func (s *Service) validate(ctx context.Context, secret string) (*ValidationResult, error) {
	if !strings.HasPrefix(secret, s.secretPrefix) || len(secret) == len(s.secretPrefix) {
		return &ValidationResult{Reason: ReasonNotFound}, nil
	}

	c, err := s.store.GetCredentialByHash(ctx, HashSecret(secret))
	if errors.Is(err, errs.ErrCredentialNotFound) {
		return &ValidationResult{Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("validate credential: %w", err)
	}

	pub := c.public()
	if !c.Active {
		return &ValidationResult{Reason: ReasonRevoked, Credential: pub}, nil
	}
	now := s.now()
	if c.Expired(now) {
		return &ValidationResult{Reason: ReasonExpired, Credential: pub}, nil
	}

	rl, err := s.limiter.Allow(ctx, c.ID.String(), c.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("validate credential: %w", err)
	}
	if !rl.Allowed {
		return &ValidationResult{Reason: ReasonRateLimited, Credential: pub, RateLimit: rl}, nil
	}

	if err := s.store.TouchCredential(ctx, c.ID, now.UTC()); err != nil {
		s.logger.Warn("bastion: failed to record credential use",
			slog.String("credential_id", c.ID.String()),
			slog.String("error", err.Error()),
		)
	} else {
		used := now.UTC()
		pub.LastUsedAt = &used
	}

	return &ValidationResult{Valid: true, Credential: pub, RateLimit: rl}, nil
}

// Rotate issues a replacement for an owner's credential and then revokes
// the original. The replacement keeps the permissions, expiry, rate limit
// and metadata; its name gets RotatedSuffix. If revoking the original
// fails, the replacement is revoked again and the error returned, so at
// most one of the two stays usable.
func (s *Service) Rotate(ctx context.Context, ownerID string, credID id.CredentialID) (*Issued, error) {
	prev, err := s.owned(ctx, ownerID, credID)
	if err != nil {
		return nil, fmt.Errorf("rotate credential: %w", err)
	}
	if !prev.Active {
		return nil, fmt.Errorf("rotate credential %s: %w", credID, errs.ErrCredentialNotFound)
	}

	next := prev.Clone()
	next.Name = strings.TrimSuffix(prev.Name, RotatedSuffix) + RotatedSuffix
	if next.Metadata == nil {
		next.Metadata = make(map[string]any, 1)
	}
	next.Metadata["rotated_from"] = prev.ID.String()

	issued, err := s.issue(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("rotate credential: %w", err)
	}

	if err := s.deactivate(ctx, prev); err != nil {
		s.logger.Error("bastion: rotation left the previous credential active; revoking replacement",
			slog.String("credential_id", prev.ID.String()),
			slog.String("replacement_id", next.ID.String()),
			slog.String("error", err.Error()),
		)
		if rbErr := s.deactivate(ctx, next); rbErr != nil {
			return nil, fmt.Errorf("rotate credential: revoke previous: %w (replacement still active: %v)", err, rbErr)
		}
		return nil, fmt.Errorf("rotate credential: revoke previous: %w", err)
	}

	if s.hooks != nil {
		s.hooks.EmitCredentialRotated(ctx, prev.public(), issued.Credential)
	}
	return issued, nil
}

// Revoke deactivates one of ownerID's credentials. Revoking an already
// inactive credential is a no-op.
func (s *Service) Revoke(ctx context.Context, ownerID string, credID id.CredentialID) error {
	c, err := s.owned(ctx, ownerID, credID)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if !c.Active {
		return nil
	}
	if err := s.deactivate(ctx, c); err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if s.hooks != nil {
		s.hooks.EmitCredentialRevoked(ctx, c.public())
	}
	return nil
}

func (s *Service) deactivate(ctx context.Context, c *Credential) error {
	c.Active = false
	c.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCredential(ctx, c); err != nil {
		c.Active = true
		return err
	}
	if err := s.limiter.Reset(ctx, c.ID.String()); err != nil {
		s.logger.Warn("bastion: failed to reset rate limit window",
			slog.String("credential_id", c.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Update changes the settings of one of ownerID's credentials. A new
// permission list is validated in full before anything is written.
func (s *Service) Update(ctx context.Context, ownerID string, credID id.CredentialID, req UpdateRequest) (*Credential, error) {
	var perms []permission.Permission
	if req.Permissions != nil {
		var err error
		if perms, err = permission.ParseList(req.Permissions); err != nil {
			return nil, fmt.Errorf("update credential: %w", err)
		}
	}
	if req.RateLimit != nil && *req.RateLimit < 0 {
		return nil, fmt.Errorf("update credential: %w: %d", errs.ErrInvalidRateLimit, *req.RateLimit)
	}

	c, err := s.owned(ctx, ownerID, credID)
	if err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Permissions != nil {
		c.Permissions = perms
	}
	switch {
	case req.ClearExpiry:
		c.ExpiresAt = nil
	case req.ExpiresAt != nil:
		c.ExpiresAt = normalizeExpiry(req.ExpiresAt)
	}
	if req.RateLimit != nil {
		c.RateLimit = *req.RateLimit
	}
	if req.Metadata != nil {
		c.Metadata = maps.Clone(req.Metadata)
	}
	c.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateCredential(ctx, c); err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	return c.public(), nil
}

// Get returns one of ownerID's credentials.
func (s *Service) Get(ctx context.Context, ownerID string, credID id.CredentialID) (*Credential, error) {
	c, err := s.owned(ctx, ownerID, credID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c.public(), nil
}

// List returns ownerID's credentials.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Credential, error) {
	list, err := s.store.ListCredentials(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	out := make([]*Credential, len(list))
	for i, c := range list {
		out[i] = c.public()
	}
	return out, nil
}

// CleanupExpired deactivates every expired credential and returns how many
// were affected.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeactivateExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired credentials: %w", err)
	}
	if n > 0 && s.hooks != nil {
		s.hooks.EmitCredentialsExpired(ctx, n)
	}
	return n, nil
}

// owned loads credID and hides it from anyone but its owner.
func (s *Service) owned(ctx context.Context, ownerID string, credID id.CredentialID) (*Credential, error) {
	c, err := s.store.GetCredential(ctx, credID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, fmt.Errorf("credential %s: %w", credID, errs.ErrCredentialNotFound)
	}
	return c, nil
}
