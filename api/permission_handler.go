package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

func (a *API) registerPermissionRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("permissions"))

	if err := g.GET("/permissions", a.listPermissions,
		forge.WithSummary("List permissions"),
		forge.WithDescription("Lists the closed permission enumeration."),
		forge.WithOperationID("listPermissions"),
		forge.WithResponseSchema(http.StatusOK, "Permissions", PermissionsResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/base-roles", a.listBaseRoles,
		forge.WithSummary("List base roles"),
		forge.WithDescription("Lists the compiled-in roles and their static permissions."),
		forge.WithOperationID("listBaseRoles"),
		forge.WithResponseSchema(http.StatusOK, "Base roles", []BaseRoleResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listPermissions(ctx forge.Context, _ *struct{}) (*PermissionsResponse, error) {
	if _, err := a.authorize(ctx, permission.RoleRead); err != nil {
		return nil, err
	}
	resp := &PermissionsResponse{Permissions: permission.Strings(permission.Enumeration())}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) listBaseRoles(ctx forge.Context, _ *struct{}) ([]BaseRoleResponse, error) {
	if _, err := a.authorize(ctx, permission.RoleRead); err != nil {
		return nil, err
	}

	bases := role.Bases()
	resp := make([]BaseRoleResponse, 0, len(bases))
	for _, b := range bases {
		set, _ := role.BasePermissions(string(b))
		resp = append(resp, BaseRoleResponse{
			Name:        string(b),
			Permissions: permission.Strings(set.Slice()),
		})
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}
