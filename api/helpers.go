package api

import (
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/middleware"
	"github.com/xraph/bastion/permission"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, bastion.ErrBaseRoleImmutable) || errors.Is(err, bastion.ErrRoleExists) {
		return forge.BadRequest(err.Error())
	}
	if isInheritanceError(err) || errors.Is(err, bastion.ErrRoleHasDependents) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, bastion.ErrInvalidPermission) || errors.Is(err, bastion.ErrInvalidRoleName) ||
		errors.Is(err, bastion.ErrInvalidRateLimit) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, bastion.ErrAccessDenied) {
		return forge.Forbidden(err.Error())
	}
	var d *middleware.Denial
	if errors.As(err, &d) {
		switch d.Status {
		case http.StatusUnauthorized:
			return forge.Unauthorized(string(d.Decision))
		case http.StatusBadRequest:
			return forge.BadRequest(string(d.Decision))
		default:
			return forge.Forbidden(string(d.Decision))
		}
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, bastion.ErrRoleNotFound) ||
		errors.Is(err, bastion.ErrCredentialNotFound)
}

func isInheritanceError(err error) bool {
	return errors.Is(err, bastion.ErrCyclicRoleInheritance) ||
		errors.Is(err, bastion.ErrSelfInheritance) ||
		errors.Is(err, bastion.ErrUnknownParentRole) ||
		errors.Is(err, bastion.ErrInheritanceDepthExceeded)
}

// caller returns the authenticated principal, resolving it from the
// request when middleware.Authenticate has not already done so.
func (a *API) caller(ctx forge.Context) (*bastion.Principal, error) {
	p, err := middleware.Resolve(ctx, a.eng, a.auth...)
	if err != nil {
		return nil, mapError(err)
	}
	if p == nil {
		return nil, forge.Unauthorized("authentication required")
	}
	return p, nil
}

// authorize returns the caller and fails unless it holds perm.
func (a *API) authorize(ctx forge.Context, perm permission.Permission) (*bastion.Principal, error) {
	p, err := a.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.eng.Enforce(ctx.Context(), &bastion.CheckRequest{Principal: *p, Permission: perm}); err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// ownerOf is the principal that owns credentials created by p.
func ownerOf(p *bastion.Principal) string {
	if p.IsCredential() {
		return p.OwnerID
	}
	return p.ID
}
