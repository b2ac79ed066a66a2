package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

func (a *API) registerCheckRoutes(router forge.Router) error {
	g := router.Group("/v1/authz", forge.WithGroupTags("authorization"))

	if err := g.POST("/check", a.check,
		forge.WithSummary("Authorization check"),
		forge.WithDescription("Evaluates whether the principal holds the permission."),
		forge.WithOperationID("authzCheck"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Check result", CheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/enforce", a.enforce,
		forge.WithSummary("Enforce authorization"),
		forge.WithDescription("Returns 200 if allowed, 403 if denied."),
		forge.WithOperationID("authzEnforce"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Allowed", CheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/batch-check", a.batchCheck,
		forge.WithSummary("Batch authorization check"),
		forge.WithDescription("Evaluates multiple authorization checks in one request."),
		forge.WithOperationID("authzBatchCheck"),
		forge.WithRequestSchema(BatchCheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Batch results", BatchCheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/permissions", a.myPermissions,
		forge.WithSummary("Effective permissions"),
		forge.WithDescription("Lists the permissions of the authenticated caller."),
		forge.WithOperationID("authzPermissions"),
		forge.WithResponseSchema(http.StatusOK, "Permissions", PermissionsResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) check(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	cr, err := a.toCheckRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := a.eng.Check(ctx.Context(), cr)
	if err != nil {
		return nil, mapError(err)
	}

	resp := toCheckResponse(result)
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) enforce(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	cr, err := a.toCheckRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := a.eng.Check(ctx.Context(), cr)
	if err != nil {
		return nil, mapError(err)
	}

	resp := toCheckResponse(result)
	if !result.Allowed {
		return resp, ctx.JSON(http.StatusForbidden, resp)
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) batchCheck(ctx forge.Context, req *BatchCheckRequest) (*BatchCheckResponse, error) {
	if len(req.Checks) == 0 {
		return nil, forge.BadRequest("checks cannot be empty")
	}

	results := make([]CheckResponse, len(req.Checks))
	for i := range req.Checks {
		cr, err := a.toCheckRequest(ctx, &req.Checks[i])
		if err != nil {
			return nil, err
		}
		result, err := a.eng.Check(ctx.Context(), cr)
		if err != nil {
			return nil, mapError(err)
		}
		results[i] = *toCheckResponse(result)
	}

	resp := &BatchCheckResponse{Results: results}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) myPermissions(ctx forge.Context, _ *struct{}) (*PermissionsResponse, error) {
	p, err := a.caller(ctx)
	if err != nil {
		return nil, err
	}

	set := a.eng.Permissions(ctx.Context(), *p)
	resp := &PermissionsResponse{Role: p.Role, Permissions: permission.Strings(set.Slice())}
	return resp, ctx.JSON(http.StatusOK, resp)
}

// toCheckRequest checks the caller itself unless the body names another
// principal, which requires role:read.
func (a *API) toCheckRequest(ctx forge.Context, r *CheckRequest) (*bastion.CheckRequest, error) {
	if r.Permission == "" {
		return nil, forge.BadRequest("permission is required")
	}
	out := &bastion.CheckRequest{Permission: permission.Permission(r.Permission), Scope: r.Scope}

	if r.PrincipalKind == "" {
		p, err := a.caller(ctx)
		if err != nil {
			return nil, err
		}
		out.Principal = *p
		return out, nil
	}

	if _, err := a.authorize(ctx, permission.RoleRead); err != nil {
		return nil, err
	}
	perms, err := permission.ParseList(r.Permissions)
	if err != nil {
		return nil, mapError(err)
	}
	out.Principal = bastion.Principal{
		Kind:        bastion.PrincipalKind(r.PrincipalKind),
		ID:          r.PrincipalID,
		Role:        r.Role,
		Permissions: perms,
	}
	return out, nil
}

func toCheckResponse(r *bastion.CheckResult) *CheckResponse {
	resp := &CheckResponse{
		Allowed:    r.Allowed,
		Decision:   string(r.Decision),
		Reason:     r.Reason,
		EvalTimeNs: r.EvalTimeNs,
	}
	for _, m := range r.MatchedBy {
		resp.MatchedBy = append(resp.MatchedBy, MatchInfo{
			Source: m.Source,
			Detail: m.Detail,
		})
	}
	return resp
}
