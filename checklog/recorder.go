package checklog

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/plugin"
)

// Compile-time hook checks.
var (
	_ plugin.Plugin     = (*Recorder)(nil)
	_ plugin.AfterCheck = (*Recorder)(nil)
)

// Recorder writes an Entry for every completed check.
type Recorder struct {
	store      Store
	logger     *slog.Logger
	now        func() time.Time
	deniedOnly bool
	logDenials bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used for store failures and denials.
func WithLogger(l *slog.Logger) Option { return func(r *Recorder) { r.logger = l } }

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option { return func(r *Recorder) { r.now = now } }

// WithDeniedOnly records denials and skips allowed checks.
func WithDeniedOnly() Option { return func(r *Recorder) { r.deniedOnly = true } }

// WithDenialLogging also logs every denial at Info.
func WithDenialLogging() Option { return func(r *Recorder) { r.logDenials = true } }

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s Store, opts ...Option) *Recorder {
	r := &Recorder{store: s, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements plugin.Plugin.
func (r *Recorder) Name() string { return "checklog" }

// Store returns the underlying store.
func (r *Recorder) Store() Store { return r.store }

// OnAfterCheck implements plugin.AfterCheck.
func (r *Recorder) OnAfterCheck(ctx context.Context, req, result any) error {
	cr, ok := req.(*bastion.CheckRequest)
	if !ok || cr == nil {
		return nil
	}
	res, ok := result.(*bastion.CheckResult)
	if !ok || res == nil {
		return nil
	}
	if r.deniedOnly && res.Allowed {
		return nil
	}

	e := &Entry{
		ID:            id.NewCheckID(),
		PrincipalKind: string(cr.Principal.Kind),
		PrincipalID:   cr.Principal.ID,
		OwnerID:       cr.Principal.OwnerID,
		Role:          cr.Principal.Role,
		Permission:    string(cr.Permission),
		Scope:         cr.Scope,
		Allowed:       res.Allowed,
		Decision:      string(res.Decision),
		Reason:        res.Reason,
		EvalTimeNs:    res.EvalTimeNs,
		CreatedAt:     r.now().UTC(),
	}
	if r.logDenials && !res.Allowed {
		r.logger.Info("bastion: access denied",
			slog.String("principal", e.PrincipalID),
			slog.String("permission", e.Permission),
			slog.String("decision", e.Decision),
		)
	}
	return r.store.AppendCheckLog(ctx, e)
}
