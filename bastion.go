// Package bastion decides whether a principal may perform an action and
// manages the API credentials principals authenticate with.
//
// A principal is either a session, carrying a role name, or a credential,
// carrying a role name plus an explicit permission list that is additive to
// the role. Roles are the compiled-in base roles or custom roles layered on
// top of them with inherited grants and permanent denials.
//
//	eng, err := bastion.NewEngine(
//	    bastion.WithStore(memory.New()),
//	)
//	auth, err := eng.Authenticate(ctx, r.Header.Get("X-API-Key"))
//	result, err := eng.Check(ctx, &bastion.CheckRequest{
//	    Principal:  *auth.Principal,
//	    Permission: permission.ContentPublish,
//	    Scope:      "news",
//	})
package bastion

import (
	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/permission"
)

// PrincipalKind identifies how the caller authenticated.
type PrincipalKind string

const (
	// PrincipalSession is a logged-in user. Only the role chain applies.
	PrincipalSession PrincipalKind = "session"

	// PrincipalCredential is an API credential. Its explicit permissions
	// are added to the role chain.
	PrincipalCredential PrincipalKind = "credential"
)

// Principal is the actor of an authorization check.
type Principal struct {
	Kind PrincipalKind `json:"kind"`

	// ID is the user id for sessions and the credential id for credentials.
	ID string `json:"id"`

	// OwnerID is the principal owning a credential. Empty for sessions.
	OwnerID string `json:"owner_id,omitempty"`

	// Role is a base or custom role name.
	Role string `json:"role"`

	// Permissions are the credential's explicit grants. Ignored for sessions.
	Permissions []permission.Permission `json:"permissions,omitempty"`
}

// IsCredential reports whether p authenticated with a credential.
func (p Principal) IsCredential() bool { return p.Kind == PrincipalCredential }

// CheckRequest is the input to an authorization check.
type CheckRequest struct {
	Principal  Principal             `json:"principal"`
	Permission permission.Permission `json:"permission"`

	// Scope is an optional blueprint slug. When set, a grant of the scoped
	// variant "content:<scope>:<action>" also satisfies the check.
	Scope string `json:"scope,omitempty"`
}

// CheckResult is the outcome of an authorization check.
type CheckResult struct {
	Allowed    bool        `json:"allowed"`
	Decision   Decision    `json:"decision"`
	Reason     string      `json:"reason,omitempty"`
	MatchedBy  []MatchInfo `json:"matched_by,omitempty"`
	EvalTimeNs int64       `json:"eval_time_ns"`
}

// Decision is the authorization outcome.
type Decision string

const (
	// DecisionAllow means the request is permitted.
	DecisionAllow Decision = "allow"

	// DecisionDenyNoPerms means neither the role nor the credential grants
	// the permission.
	DecisionDenyNoPerms Decision = "deny_no_perms"

	// DecisionDenyUnauthenticated means no valid principal was presented.
	DecisionDenyUnauthenticated Decision = "deny_unauthenticated"

	// DecisionDenyRevoked means the credential has been revoked.
	DecisionDenyRevoked Decision = "deny_revoked"

	// DecisionDenyExpired means the credential is past its expiry.
	DecisionDenyExpired Decision = "deny_expired"

	// DecisionDenyRateLimited means the credential exhausted its window.
	DecisionDenyRateLimited Decision = "deny_rate_limited"

	// DecisionDenyInvalidPermission means the requested permission or
	// scope is outside the enumeration.
	DecisionDenyInvalidPermission Decision = "deny_invalid_permission"
)

// MatchInfo describes which source granted a permission.
type MatchInfo struct {
	Source string `json:"source"` // "role", "credential"
	Detail string `json:"detail,omitempty"`
}

// AuthResult is the outcome of Authenticate. Principal is nil unless the
// credential validated.
type AuthResult struct {
	Principal  *Principal                   `json:"principal,omitempty"`
	Decision   Decision                     `json:"decision"`
	Validation *credential.ValidationResult `json:"validation"`
}

// Authenticated reports whether a principal was established.
func (a *AuthResult) Authenticated() bool { return a.Principal != nil }

// decisionFor maps a failed validation to its decision.
func decisionFor(reason credential.Reason) Decision {
	switch reason {
	case credential.ReasonRevoked:
		return DecisionDenyRevoked
	case credential.ReasonExpired:
		return DecisionDenyExpired
	case credential.ReasonRateLimited:
		return DecisionDenyRateLimited
	default:
		return DecisionDenyUnauthenticated
	}
}
