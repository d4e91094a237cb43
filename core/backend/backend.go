// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/scaffold/core"
	"github.com/relabs-tech/scaffold/core/access"
	"github.com/relabs-tech/scaffold/core/apierror"
	"github.com/relabs-tech/scaffold/core/logger"
	"github.com/relabs-tech/scaffold/core/projection"
	"github.com/relabs-tech/scaffold/core/registry"
	"github.com/relabs-tech/scaffold/core/schema"
)

// Backend is the generated REST API for a resource registry
type Backend struct {
	registry             *registry.Registry
	router               *mux.Router
	authorizationEnabled bool
	cors                 bool
	validator            *schema.Validator
	projector            *projection.Projector
	interceptors         map[string]requestHandler
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Registry holds the resources. It must be complete and validated.
	Registry *registry.Registry
	// Router is the mux router the routes are added to
	Router *mux.Router
	// AuthorizationEnabled enables the permission checks. If it is false, everybody may do everything.
	AuthorizationEnabled bool
	// Validator validates request bodies of resources with a schema_id. Optional.
	Validator *schema.Validator
	// Resolver resolves relations for expansion. Defaults to the registry.
	Resolver projection.Resolver
	// CORS adds the CORS middleware to the router
	CORS bool
	// Compression adds the gzip middleware to the router
	Compression bool
}

// New realizes the actual backend. It adds the routes of all resources in the
// registry to the router.
func New(bb *Builder) *Backend {
	if bb.Registry == nil {
		panic("Registry is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}
	if err := bb.Registry.Validate(); err != nil {
		panic(err)
	}
	resolver := bb.Resolver
	if resolver == nil {
		resolver = bb.Registry
	}

	b := &Backend{
		registry:             bb.Registry,
		router:               bb.Router,
		authorizationEnabled: bb.AuthorizationEnabled,
		cors:                 bb.CORS,
		validator:            bb.Validator,
		projector:            projection.New(resolver),
		interceptors:         make(map[string]requestHandler),
	}

	if bb.CORS {
		b.handleCORS()
	}
	if bb.Compression {
		b.handleCompression()
	}
	access.HandleAuthorizationRoute(b.router)
	b.handleVersion(b.router)
	b.handleRoutes(b.router)

	notFound := func(w http.ResponseWriter, r *http.Request) {
		b.writeError(w, r, apierror.NotFound("Unrecognized request URL ("+r.Method+": "+r.URL.Path+")"))
	}
	b.router.NotFoundHandler = http.HandlerFunc(notFound)
	b.router.MethodNotAllowedHandler = http.HandlerFunc(notFound)
	return b
}

// Router returns the router of the backend
func (b *Backend) Router() *mux.Router {
	return b.router
}

// Registry returns the resource registry of the backend
func (b *Backend) Registry() *registry.Registry {
	return b.registry
}

// handleRoutes adds the collection and item routes of every resource
func (b *Backend) handleRoutes(router *mux.Router) {
	for _, res := range b.registry.Resources() {
		resource := res.Descriptor.Resource
		collection := "/" + core.Plural(resource)
		item := collection + "/{" + resource + "_id}"

		rlog := logger.Default()
		rlog.Debugln("resource", resource)
		rlog.Debugln("  handle routes:", collection, "GET,POST")
		rlog.Debugln("  handle routes:", item, "GET,PUT,PATCH,DELETE")

		router.Handle(collection, b.handler(b.listRoute(), res)).Methods(b.methods(http.MethodGet)...)
		router.Handle(collection, b.handler(b.createRoute(), res)).Methods(http.MethodPost)
		router.Handle(item, b.handler(b.readRoute(), res)).Methods(b.methods(http.MethodGet)...)
		router.Handle(item, b.handler(b.updateRoute(), res)).Methods(http.MethodPut, http.MethodPatch)
		router.Handle(item, b.handler(b.deleteRoute(), res)).Methods(http.MethodDelete)
	}
}

// methods adds OPTIONS for preflight requests if CORS is enabled. Middlewares
// only run for matching routes.
func (b *Backend) methods(methods ...string) []string {
	if b.cors {
		return append(methods, http.MethodOptions)
	}
	return methods
}
