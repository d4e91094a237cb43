// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package access provides utilities for access control
*/
package access

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/scaffold/core"
	"github.com/relabs-tech/scaffold/core/logger"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context keys
const (
	contextKeyAuthorization contextKey = "_authorization_"
)

/*
Authorization is a context object which stores authorization information
for users or machines, i.e. the requester.

An authorization carries a list of roles and selectors. A selector is a
named identifier, for example "author_id", which restricts permits to the
records identified by it.

Authorizations are added to a request context with

	ctx = auth.ContextWithAuthorization(ctx)

and retrieved with

	auth := AuthorizationFromContext(ctx)

Authorization objects are added to the context by the middleware
implementations of this package, depending on the bearer token in the HTTP request.
*/
type Authorization struct {
	Identity  string            `json:"identity,omitempty"`
	Roles     []string          `json:"roles"`
	Selectors map[string]string `json:"selectors,omitempty"`
}

// Permit grants the operations of a resource to a role. If selectors are
// specified, the permit only applies to requests whose route parameters
// match the requester's selectors.
//
// The pseudo role "public" applies to everybody, authenticated or not. The pseudo
// role "everybody" applies to every authenticated requester.
type Permit struct {
	Role       string           `json:"role"`
	Operations []core.Operation `json:"operations"`
	Selectors  []string         `json:"selectors,omitempty"`
}

// Permissions answers whether a requester may execute an operation
type Permissions interface {
	Can(operation core.Operation, requester *Authorization, params map[string]string) bool
}

// Permits is the list of permits of a resource. It implements Permissions.
type Permits []Permit

// Can implements Permissions
func (p Permits) Can(operation core.Operation, requester *Authorization, params map[string]string) bool {
	return requester.IsAuthorized(operation, params, p)
}

// HasRole returns true if the authorization contains the requested role;
// otherwise it returns false.
func (a *Authorization) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, hasRole := range a.Roles {
		if role == hasRole {
			return true
		}
	}
	return false
}

// Selector returns the value for the requested selector; if the
// selector does not exist, it returns an empty string and false.
func (a *Authorization) Selector(key string) (string, bool) {
	if a == nil || a.Selectors == nil {
		return "", false
	}
	value, ok := a.Selectors[key]
	return value, ok
}

// IsAuthorized returns true if the authorization is authorized for the requested
// operation according to the passed permits. The params are the route parameters
// of the request, selectors are matched against them.
//
// The "admin" role is always authorized by default, unless specified otherwise for a resource.
func (a *Authorization) IsAuthorized(operation core.Operation, params map[string]string, permits []Permit) bool {
	roles := []string{"public"}
	if a != nil {
		roles = append(append([]string{}, a.Roles...), "public")
	}

	for _, role := range roles {
		var rolePermits []Permit
		explicit := false
		for _, permit := range permits {
			if permit.Role == role {
				explicit = true
				rolePermits = append(rolePermits, permit)
			} else if permit.Role == "everybody" && a != nil && role != "public" {
				rolePermits = append(rolePermits, permit)
			}
		}
		if role == "admin" && !explicit {
			return true // admin by default is always authorized
		}

		for _, permit := range rolePermits {
			if !permit.allows(operation) {
				continue
			}
			if a.matchesSelectors(permit.Selectors, params) {
				return true
			}
		}
	}
	return false
}

func (p Permit) allows(operation core.Operation) bool {
	for _, o := range p.Operations {
		if o == operation {
			return true
		}
	}
	return false
}

func (a *Authorization) matchesSelectors(selectors []string, params map[string]string) bool {
	for _, selector := range selectors {
		key := selector + "_id"
		value, ok := a.Selector(key)
		if !ok || params[key] != value {
			return false
		}
	}
	return true
}

// ContextWithAuthorization returns a new context with this authorization added to it
func (a *Authorization) ContextWithAuthorization(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, a)
}

// AuthorizationFromContext retrieves an authorization from the context
func AuthorizationFromContext(ctx context.Context) *Authorization {
	a, ok := ctx.Value(contextKeyAuthorization).(*Authorization)
	if ok {
		return a
	}
	return nil
}

// HandleAuthorizationRoute adds a route /authorization GET to the router
//
// The route returns the current authorization of the requester.
func HandleAuthorizationRoute(router *mux.Router) {
	logger.Default().Debugln("authorization")
	logger.Default().Debugln("  handle route: /authorization GET")
	router.HandleFunc("/authorization", func(w http.ResponseWriter, r *http.Request) {
		auth := AuthorizationFromContext(r.Context())
		if auth == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		jsonData, _ := json.MarshalIndent(auth, "", "  ")
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonData)
	}).Methods(http.MethodGet)
}
