package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/customrole"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

func (a *API) registerRoleRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("roles"))

	if err := g.POST("/roles", a.createRole,
		forge.WithSummary("Create custom role"),
		forge.WithDescription("Creates a custom role inheriting from a base or custom role."),
		forge.WithOperationID("createRole"),
		forge.WithRequestSchema(CreateRoleRequest{}),
		forge.WithCreatedResponse(&role.Definition{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/roles/:roleName", a.getRole,
		forge.WithSummary("Get custom role"),
		forge.WithDescription("Returns a custom role definition."),
		forge.WithOperationID("getRole"),
		forge.WithResponseSchema(http.StatusOK, "Role details", &role.Definition{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/roles/:roleName", a.updateRole,
		forge.WithSummary("Update custom role"),
		forge.WithDescription("Updates a custom role. Inheritance is validated again."),
		forge.WithOperationID("updateRole"),
		forge.WithRequestSchema(UpdateRoleRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated role", &role.Definition{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/roles/:roleName", a.deleteRole,
		forge.WithSummary("Delete custom role"),
		forge.WithDescription("Deletes a custom role no other role inherits from."),
		forge.WithOperationID("deleteRole"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/roles", a.listRoles,
		forge.WithSummary("List custom roles"),
		forge.WithDescription("Lists custom roles ordered by name."),
		forge.WithOperationID("listRoles"),
		forge.WithResponseSchema(http.StatusOK, "Role list", []*role.Definition{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/roles/:roleName/permissions", a.rolePermissions,
		forge.WithSummary("Resolve role permissions"),
		forge.WithDescription("Returns the effective permissions and inheritance chain of a role."),
		forge.WithOperationID("rolePermissions"),
		forge.WithResponseSchema(http.StatusOK, "Resolved permissions", RolePermissionsResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/role-transfer/export", a.exportRoles,
		forge.WithSummary("Export custom roles"),
		forge.WithDescription("Exports every custom role, parents first."),
		forge.WithOperationID("exportRoles"),
		forge.WithResponseSchema(http.StatusOK, "Role definitions", []*role.Definition{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/role-transfer/import", a.importRoles,
		forge.WithSummary("Import custom roles"),
		forge.WithDescription("Creates or updates roles in bulk. Failures are reported per role."),
		forge.WithOperationID("importRoles"),
		forge.WithRequestSchema(ImportRolesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Import results", ImportRolesResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) createRole(ctx forge.Context, req *CreateRoleRequest) (*role.Definition, error) {
	if _, err := a.authorize(ctx, permission.RoleCreate); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, forge.BadRequest("name is required")
	}
	if req.InheritsFrom == "" {
		return nil, forge.BadRequest("inherits_from is required")
	}

	d, err := a.eng.Roles().Create(ctx.Context(), req.Name, req.InheritsFrom, customrole.CreateOptions{
		Permissions:       req.Permissions,
		DeniedPermissions: req.DeniedPermissions,
		Description:       req.Description,
		Metadata:          req.Metadata,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return d, ctx.JSON(http.StatusCreated, d)
}

func (a *API) getRole(ctx forge.Context, _ *GetRoleRequest) (*role.Definition, error) {
	if _, err := a.authorize(ctx, permission.RoleRead); err != nil {
		return nil, err
	}

	d, err := a.eng.Roles().Get(ctx.Context(), ctx.Param("roleName"))
	if err != nil {
		return nil, mapError(err)
	}

	return d, ctx.JSON(http.StatusOK, d)
}

func (a *API) updateRole(ctx forge.Context, req *UpdateRoleRequest) (*role.Definition, error) {
	if _, err := a.authorize(ctx, permission.RoleUpdate); err != nil {
		return nil, err
	}

	d, err := a.eng.Roles().Update(ctx.Context(), ctx.Param("roleName"), customrole.UpdateOptions{
		InheritsFrom:      req.InheritsFrom,
		Permissions:       req.Permissions,
		DeniedPermissions: req.DeniedPermissions,
		Description:       req.Description,
		Metadata:          req.Metadata,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return d, ctx.JSON(http.StatusOK, d)
}

func (a *API) deleteRole(ctx forge.Context, _ *GetRoleRequest) (*struct{}, error) {
	if _, err := a.authorize(ctx, permission.RoleDelete); err != nil {
		return nil, err
	}

	if err := a.eng.Roles().Delete(ctx.Context(), ctx.Param("roleName")); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listRoles(ctx forge.Context, _ *struct{}) ([]*role.Definition, error) {
	if _, err := a.authorize(ctx, permission.RoleRead); err != nil {
		return nil, err
	}

	roles := a.eng.Roles().List(ctx.Context())
	return roles, ctx.JSON(http.StatusOK, roles)
}

func (a *API) rolePermissions(ctx forge.Context, _ *GetRoleRequest) (*RolePermissionsResponse, error) {
	if _, err := a.authorize(ctx, permission.RoleRead); err != nil {
		return nil, err
	}

	name := ctx.Param("roleName")
	res := a.eng.Resolver()
	if !res.Exists(name) {
		return nil, forge.NotFound("role " + name + " not found")
	}

	resp := &RolePermissionsResponse{
		Role:        name,
		Permissions: permission.Strings(res.Resolve(ctx.Context(), name).Slice()),
		Chain:       res.Chain(name),
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) exportRoles(ctx forge.Context, _ *struct{}) ([]*role.Definition, error) {
	if _, err := a.authorize(ctx, permission.RoleRead); err != nil {
		return nil, err
	}

	defs := a.eng.Roles().Export(ctx.Context())
	return defs, ctx.JSON(http.StatusOK, defs)
}

func (a *API) importRoles(ctx forge.Context, req *ImportRolesRequest) (*ImportRolesResponse, error) {
	if _, err := a.authorize(ctx, permission.RoleCreate); err != nil {
		return nil, err
	}
	if len(req.Roles) == 0 {
		return nil, forge.BadRequest("roles cannot be empty")
	}

	defs, rejected := importDefinitions(req.Roles)
	results, err := a.eng.Roles().Import(ctx.Context(), defs, customrole.ImportOptions{Overwrite: req.Overwrite})
	if err != nil {
		return nil, mapError(err)
	}
	results = append(rejected, results...)

	resp := &ImportRolesResponse{Results: results}
	return resp, ctx.JSON(http.StatusOK, resp)
}

// importDefinitions converts import entries into definitions. Entries with
// an invalid permission are reported as failed results and left out.
func importDefinitions(reqs []CreateRoleRequest) ([]*role.Definition, []customrole.ImportResult) {
	defs := make([]*role.Definition, 0, len(reqs))
	var rejected []customrole.ImportResult
	for _, r := range reqs {
		d, err := definitionFrom(r)
		if err != nil {
			err = fmt.Errorf("import role %q: %w", r.Name, err)
			rejected = append(rejected, customrole.ImportResult{
				Name:   r.Name,
				Status: customrole.ImportError,
				Err:    err,
				Error:  err.Error(),
			})
			continue
		}
		defs = append(defs, d)
	}
	return defs, rejected
}

func definitionFrom(r CreateRoleRequest) (*role.Definition, error) {
	grants, err := permission.ParseList(r.Permissions)
	if err != nil {
		return nil, err
	}
	denies, err := permission.ParseList(r.DeniedPermissions)
	if err != nil {
		return nil, err
	}
	return &role.Definition{
		Name:              r.Name,
		InheritsFrom:      r.InheritsFrom,
		Permissions:       grants,
		DeniedPermissions: denies,
		Description:       r.Description,
		Metadata:          r.Metadata,
	}, nil
}
