package bastion

import "context"

type contextKey int

const ctxKeyPrincipal contextKey = iota

// WithPrincipal returns a context carrying p. The HTTP middleware stores the
// authenticated principal this way for handlers further down the chain.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(*Principal)
	return p, ok && p != nil
}
