// Package api provides HTTP handlers for the Bastion authorization engine.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/middleware"
)

// API wires all Bastion HTTP handlers together.
type API struct {
	eng    *bastion.Engine
	router forge.Router
	auth   []middleware.Option
}

// New creates an API from an Engine and a Forge router. The auth options
// control how handlers authenticate callers.
func New(eng *bastion.Engine, router forge.Router, auth ...middleware.Option) *API {
	return &API{eng: eng, router: router, auth: auth}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("bastion: register routes: " + err.Error())
	}
	return a.router.Handler()
}

// RegisterRoutes registers all API routes into the given Forge router.
// Every handler authenticates its caller; middleware.Authenticate may run
// first to answer rejected requests with their exact status.
func (a *API) RegisterRoutes(router forge.Router) error {
	registerers := []func(forge.Router) error{
		a.registerCheckRoutes,
		a.registerPermissionRoutes,
		a.registerRoleRoutes,
		a.registerCredentialRoutes,
	}
	for _, fn := range registerers {
		if err := fn(router); err != nil {
			return err
		}
	}
	return nil
}
