// Package middleware provides HTTP authentication and authorization
// middleware for Bastion.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/ratelimit"
)

// HeaderAPIKey carries the credential secret.
const HeaderAPIKey = "X-API-Key"

const principalKey = "bastion.principal"

// SessionRoleFunc returns the role of a session user.
type SessionRoleFunc func(ctx context.Context, userID string) (string, error)

// Option configures Authenticate.
type Option func(*authOptions)

type authOptions struct {
	sessionRole    SessionRoleFunc
	allowAnonymous bool
	now            func() time.Time
}

// WithSessionRole enables session principals. Requests without an API key
// but with a Forge user ID become sessions whose role is looked up by fn.
func WithSessionRole(fn SessionRoleFunc) Option {
	return func(o *authOptions) { o.sessionRole = fn }
}

// WithAllowAnonymous lets requests without any credential through with no
// principal attached. Handlers then decide.
func WithAllowAnonymous() Option {
	return func(o *authOptions) { o.allowAnonymous = true }
}

// WithClock overrides the clock used for Retry-After.
func WithClock(now func() time.Time) Option {
	return func(o *authOptions) { o.now = now }
}

// Denial is returned by Resolve when the request carries no acceptable
// principal.
type Denial struct {
	Status   int
	Decision bastion.Decision
}

func (d *Denial) Error() string {
	return fmt.Sprintf("bastion: %s (%d)", d.Decision, d.Status)
}

// Resolve authenticates the request from the X-API-Key header, or from the
// Forge session when WithSessionRole is set, and attaches the principal.
// Credential requests receive X-RateLimit-* headers. Rejections are
// reported as *Denial; a nil principal with a nil error means an anonymous
// request was allowed through.
func Resolve(ctx forge.Context, eng *bastion.Engine, opts ...Option) (*bastion.Principal, error) {
	if p, ok := PrincipalFrom(ctx); ok {
		return p, nil
	}
	o := authOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if secret := ctx.Request().Header.Get(HeaderAPIKey); secret != "" {
		res, err := eng.Authenticate(ctx.Context(), secret)
		if err != nil {
			return nil, err
		}
		if res.Validation != nil {
			for k, v := range rateLimitHeaders(res.Validation.RateLimit, o.now()) {
				ctx.SetHeader(k, v)
			}
		}
		if !res.Authenticated() {
			return nil, &Denial{Status: statusFor(res.Decision), Decision: res.Decision}
		}
		ctx.Set(principalKey, res.Principal)
		return res.Principal, nil
	}

	if o.sessionRole != nil {
		if userID := forge.UserIDFromContext(ctx.Context()); userID != "" {
			r, err := o.sessionRole(ctx.Context(), userID)
			if err != nil {
				return nil, err
			}
			p := &bastion.Principal{Kind: bastion.PrincipalSession, ID: userID, Role: r}
			ctx.Set(principalKey, p)
			return p, nil
		}
	}

	if o.allowAnonymous {
		return nil, nil
	}
	return nil, &Denial{Status: http.StatusUnauthorized, Decision: bastion.DecisionDenyUnauthenticated}
}

// Authenticate runs Resolve before next and answers rejected requests with
// a JSON error carrying the decision.
func Authenticate(eng *bastion.Engine, opts ...Option) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			if _, err := Resolve(ctx, eng, opts...); err != nil {
				var d *Denial
				if errors.As(err, &d) {
					return denyResponse(ctx, d.Status, d.Decision)
				}
				return err
			}
			return next(ctx)
		}
	}
}

// PrincipalFrom returns the principal attached by Authenticate.
func PrincipalFrom(ctx forge.Context) (*bastion.Principal, bool) {
	p, ok := ctx.Get(principalKey).(*bastion.Principal)
	return p, ok && p != nil
}

// Require enforces a single permission on the authenticated principal.
func Require(eng *bastion.Engine, perm permission.Permission) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			return check(eng, ctx, next, perm, "")
		}
	}
}

// RequireScoped enforces perm scoped to the blueprint named by the param
// route parameter.
func RequireScoped(eng *bastion.Engine, perm permission.Permission, param string) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			return check(eng, ctx, next, perm, ctx.Param(param))
		}
	}
}

// RequireAny allows the request if ANY of the permissions is granted.
func RequireAny(eng *bastion.Engine, perms ...permission.Permission) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			p, ok := PrincipalFrom(ctx)
			if !ok {
				return denyResponse(ctx, http.StatusUnauthorized, bastion.DecisionDenyUnauthenticated)
			}
			for _, perm := range perms {
				if eng.Can(ctx.Context(), *p, perm, "") {
					return next(ctx)
				}
			}
			return denyResponse(ctx, http.StatusForbidden, bastion.DecisionDenyNoPerms)
		}
	}
}

// RequireAll allows the request only if ALL permissions are granted.
func RequireAll(eng *bastion.Engine, perms ...permission.Permission) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			p, ok := PrincipalFrom(ctx)
			if !ok {
				return denyResponse(ctx, http.StatusUnauthorized, bastion.DecisionDenyUnauthenticated)
			}
			for _, perm := range perms {
				if !eng.Can(ctx.Context(), *p, perm, "") {
					return denyResponse(ctx, http.StatusForbidden, bastion.DecisionDenyNoPerms)
				}
			}
			return next(ctx)
		}
	}
}

func check(eng *bastion.Engine, ctx forge.Context, next forge.Handler, perm permission.Permission, scope string) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return denyResponse(ctx, http.StatusUnauthorized, bastion.DecisionDenyUnauthenticated)
	}
	res, err := eng.Check(ctx.Context(), &bastion.CheckRequest{Principal: *p, Permission: perm, Scope: scope})
	if err != nil {
		return err
	}
	if !res.Allowed {
		return denyResponse(ctx, statusFor(res.Decision), res.Decision)
	}
	return next(ctx)
}

// statusFor maps a denial decision to its HTTP status.
func statusFor(d bastion.Decision) int {
	switch d {
	case bastion.DecisionAllow:
		return http.StatusOK
	case bastion.DecisionDenyUnauthenticated:
		return http.StatusUnauthorized
	case bastion.DecisionDenyRateLimited:
		return http.StatusTooManyRequests
	case bastion.DecisionDenyInvalidPermission:
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

// rateLimitHeaders renders a limiter result. Unlimited credentials carry no
// result and get no headers.
func rateLimitHeaders(r *ratelimit.Result, now time.Time) map[string]string {
	if r == nil {
		return nil
	}
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(r.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
	if wait := r.RetryAfter(now); wait > 0 {
		secs := int64((wait + time.Second - 1) / time.Second)
		h["Retry-After"] = strconv.FormatInt(secs, 10)
	}
	return h
}

func denyResponse(ctx forge.Context, status int, d bastion.Decision) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(status)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{
		"error":    http.StatusText(status),
		"decision": string(d),
	})
}
