// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend_test

import (
	"context"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/scaffold/core"
	"github.com/relabs-tech/scaffold/core/access"
	"github.com/relabs-tech/scaffold/core/backend"
	"github.com/relabs-tech/scaffold/core/client"
	"github.com/relabs-tech/scaffold/core/memstore"
	"github.com/relabs-tech/scaffold/core/record"
	"github.com/relabs-tech/scaffold/core/registry"
	"github.com/relabs-tech/scaffold/core/schema"
)

const postSchema = `{
	"$id": "https://scaffold.example.com/schemas/post.json",
	"type": "object",
	"properties": {
		"title": { "type": "string", "minLength": 1 }
	}
}`

// TestService is a backend over memory stores with authors, addresses and posts
type TestService struct {
	Router  *mux.Router
	backend *backend.Backend

	addresses *memstore.Store
	authors   *memstore.Store
	posts     *memstore.Store

	client       client.Client
	clientNoAuth client.Client
}

type serviceOption func(bb *backend.Builder)

func withAuthorization() serviceOption {
	return func(bb *backend.Builder) {
		bb.AuthorizationEnabled = true
	}
}

func withCORS() serviceOption {
	return func(bb *backend.Builder) {
		bb.CORS = true
	}
}

// createTestService creates a new service with fresh stores
func createTestService(t *testing.T, options ...serviceOption) *TestService {
	t.Helper()
	s := &TestService{}
	r := registry.New()

	address := &record.Descriptor{
		Resource: "address",
		Fields: []record.Field{
			{Name: "city"},
			{Name: "created_at"},
			{Name: "updated_at", Hidden: true},
		},
	}
	s.addresses = memstore.New(address, memstore.WithSequence())
	_, err := r.Register(address, s.addresses, access.Permits{
		{Role: "public", Operations: []core.Operation{core.OperationRead}},
	})
	require.NoError(t, err)

	author := &record.Descriptor{
		Resource: "author",
		Fields: []record.Field{
			{Name: "name", Required: true},
			{Name: "balance", Type: record.TypeInteger, Hidden: true},
			{Name: "address", Type: record.TypeInteger, Relation: "address"},
		},
	}
	s.authors = memstore.New(author, memstore.WithSequence())
	_, err = r.Register(author, s.authors, access.Permits{
		{Role: "public", Operations: []core.Operation{core.OperationRead, core.OperationList}},
		{Role: "author", Operations: []core.Operation{core.OperationUpdate}, Selectors: []string{"author"}},
	})
	require.NoError(t, err)

	post := &record.Descriptor{
		Resource: "post",
		Fields: []record.Field{
			{Name: "title", Required: true},
			{Name: "status"},
			{Name: "author", Type: record.TypeInteger, Relation: "author"},
			{Name: "word_count", Type: record.TypeInteger, Resolve: func(ctx context.Context, rec record.Record, value interface{}) (interface{}, error) {
				switch n := value.(type) {
				case int:
					return n * 10, nil
				case int64:
					return n * 10, nil
				}
				return value, nil
			}},
		},
		Filterable: []string{"status", "author"},
		Searchable: []string{"title"},
	}
	s.posts = memstore.New(post, memstore.WithSequence())
	postResource, err := r.Register(post, s.posts, access.Permits{
		{Role: "public", Operations: []core.Operation{core.OperationRead, core.OperationList}},
		{Role: "everybody", Operations: []core.Operation{core.OperationCreate}},
	})
	require.NoError(t, err)
	postResource.SchemaID = "https://scaffold.example.com/schemas/post.json"

	validator, err := schema.NewValidator([]string{postSchema}, nil)
	require.NoError(t, err)

	s.Router = mux.NewRouter()
	builder := backend.Builder{
		Registry:  r,
		Router:    s.Router,
		Validator: validator,
	}
	for _, o := range options {
		o(&builder)
	}
	s.backend = backend.New(&builder)
	s.client = client.NewWithRouter(s.Router).WithAdminAuthorization()
	s.clientNoAuth = client.NewWithRouter(s.Router)
	return s
}

// seed creates a record directly in a store
func seed(t *testing.T, store *memstore.Store, values map[string]interface{}) record.Record {
	t.Helper()
	rec, err := store.Create(context.Background(), values)
	require.NoError(t, err)
	return rec
}

// seedBlog creates address 1, author 1 living there and post 1 written by the author
func (s *TestService) seedBlog(t *testing.T) {
	t.Helper()
	seed(t, s.addresses, map[string]interface{}{"city": "Berlin", "created_at": "c", "updated_at": "u"})
	seed(t, s.authors, map[string]interface{}{"name": "Ann", "balance": 42, "address": 1})
	seed(t, s.posts, map[string]interface{}{"title": "Hello", "author": 1, "status": "published"})
}
