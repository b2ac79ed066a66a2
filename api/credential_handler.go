package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

func (a *API) registerCredentialRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("credentials"))

	if err := g.POST("/credentials", a.issueCredential,
		forge.WithSummary("Issue credential"),
		forge.WithDescription("Issues an API credential for the caller. The secret is returned once."),
		forge.WithOperationID("issueCredential"),
		forge.WithRequestSchema(IssueCredentialRequest{}),
		forge.WithCreatedResponse(&credential.Issued{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/credentials", a.listCredentials,
		forge.WithSummary("List credentials"),
		forge.WithDescription("Lists the caller's credentials, newest first."),
		forge.WithOperationID("listCredentials"),
		forge.WithResponseSchema(http.StatusOK, "Credential list", []*credential.Credential{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/credentials/:credentialId", a.getCredential,
		forge.WithSummary("Get credential"),
		forge.WithDescription("Returns one of the caller's credentials."),
		forge.WithOperationID("getCredential"),
		forge.WithResponseSchema(http.StatusOK, "Credential details", &credential.Credential{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/credentials/:credentialId", a.updateCredential,
		forge.WithSummary("Update credential"),
		forge.WithDescription("Changes a credential's name, permissions, expiry or rate limit."),
		forge.WithOperationID("updateCredential"),
		forge.WithRequestSchema(UpdateCredentialRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated credential", &credential.Credential{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/credentials/:credentialId/rotate", a.rotateCredential,
		forge.WithSummary("Rotate credential"),
		forge.WithDescription("Issues a replacement and revokes the original."),
		forge.WithOperationID("rotateCredential"),
		forge.WithCreatedResponse(&credential.Issued{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/credentials/:credentialId", a.revokeCredential,
		forge.WithSummary("Revoke credential"),
		forge.WithDescription("Deactivates one of the caller's credentials."),
		forge.WithOperationID("revokeCredential"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) issueCredential(ctx forge.Context, req *IssueCredentialRequest) (*credential.Issued, error) {
	p, err := a.authorize(ctx, permission.APIKeyCreate)
	if err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, forge.BadRequest("name is required")
	}

	issued, err := a.eng.Credentials().Issue(ctx.Context(), ownerOf(p), credential.IssueRequest{
		Name:        req.Name,
		Permissions: req.Permissions,
		ExpiresAt:   req.ExpiresAt,
		RateLimit:   req.RateLimit,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return issued, ctx.JSON(http.StatusCreated, issued)
}

func (a *API) listCredentials(ctx forge.Context, _ *struct{}) ([]*credential.Credential, error) {
	p, err := a.authorize(ctx, permission.APIKeyRead)
	if err != nil {
		return nil, err
	}

	list, err := a.eng.Credentials().List(ctx.Context(), ownerOf(p))
	if err != nil {
		return nil, mapError(err)
	}

	return list, ctx.JSON(http.StatusOK, list)
}

func (a *API) getCredential(ctx forge.Context, _ *GetCredentialRequest) (*credential.Credential, error) {
	p, err := a.authorize(ctx, permission.APIKeyRead)
	if err != nil {
		return nil, err
	}
	credID, err := id.ParseCredentialID(ctx.Param("credentialId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid credential ID: %v", err))
	}

	c, err := a.eng.Credentials().Get(ctx.Context(), ownerOf(p), credID)
	if err != nil {
		return nil, mapError(err)
	}

	return c, ctx.JSON(http.StatusOK, c)
}

func (a *API) updateCredential(ctx forge.Context, req *UpdateCredentialRequest) (*credential.Credential, error) {
	p, err := a.authorize(ctx, permission.APIKeyUpdate)
	if err != nil {
		return nil, err
	}
	credID, err := id.ParseCredentialID(ctx.Param("credentialId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid credential ID: %v", err))
	}

	c, err := a.eng.Credentials().Update(ctx.Context(), ownerOf(p), credID, credential.UpdateRequest{
		Name:        req.Name,
		Permissions: req.Permissions,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
		RateLimit:   req.RateLimit,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return c, ctx.JSON(http.StatusOK, c)
}

func (a *API) rotateCredential(ctx forge.Context, _ *GetCredentialRequest) (*credential.Issued, error) {
	p, err := a.authorize(ctx, permission.APIKeyUpdate)
	if err != nil {
		return nil, err
	}
	credID, err := id.ParseCredentialID(ctx.Param("credentialId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid credential ID: %v", err))
	}

	issued, err := a.eng.Credentials().Rotate(ctx.Context(), ownerOf(p), credID)
	if err != nil {
		return nil, mapError(err)
	}

	return issued, ctx.JSON(http.StatusCreated, issued)
}

func (a *API) revokeCredential(ctx forge.Context, _ *GetCredentialRequest) (*struct{}, error) {
	p, err := a.authorize(ctx, permission.APIKeyDelete)
	if err != nil {
		return nil, err
	}
	credID, err := id.ParseCredentialID(ctx.Param("credentialId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid credential ID: %v", err))
	}

	if err := a.eng.Credentials().Revoke(ctx.Context(), ownerOf(p), credID); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}
