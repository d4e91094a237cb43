// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is the tool of choice if one request handler needs to call other handlers to fulfill
its task. It is also perfectly suited for unit tests.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/scaffold/core"
	"github.com/relabs-tech/scaffold/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	auth       *access.Authorization
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithAuthorization() adds an authorization to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithToken returns a new client with a bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithAdminAuthorization returns a new client with admin authorizations
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithAdminAuthorization() Client {
	return c.WithRole("admin")
}

// WithRole returns a new client with role authorization
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithRole(role string) Client {
	c.auth = &access.Authorization{
		Roles: []string{role},
	}
	return c
}

// WithAuthorization returns a new client with specific authorizations
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithAuthorization(auth *access.Authorization) Client {
	c.auth = auth
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client including its authorization
func (c Client) Context() context.Context {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if c.auth != nil {
		ctx = c.auth.ContextWithAuthorization(ctx)
	}
	return ctx
}

// Response is a complete response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do executes a request. body can be a []byte or anything which marshals to JSON, nil
// means no body. Only transport errors are returned as error.
func (c Client) Do(method, path string, header map[string]string, body interface{}) (Response, error) {
	var reader io.Reader
	if body != nil {
		data, ok := body.([]byte)
		if !ok {
			var err error
			if data, err = json.Marshal(body); err != nil {
				return Response{Status: http.StatusBadRequest}, fmt.Errorf("%s %s: %w", method, path, err)
			}
		}
		reader = bytes.NewReader(data)
	}

	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return Response{Status: http.StatusBadRequest}, err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.defaultHeaders {
		r.Header.Set(key, value)
	}
	for key, value := range header {
		r.Header.Set(key, value)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return Response{Status: res.StatusCode, Header: res.Header, Body: rec.Body.Bytes()}, nil
	}

	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return Response{Status: http.StatusInternalServerError}, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{Status: http.StatusInternalServerError}, err
	}
	return Response{Status: res.StatusCode, Header: res.Header, Body: resBody}, nil
}

// expect checks the status of the response and decodes the body into result.
// result can be a raw *[]byte or nil.
func expect(res Response, err error, result interface{}, valid ...int) (int, error) {
	if err != nil {
		return res.Status, err
	}
	ok := false
	for _, status := range valid {
		ok = ok || res.Status == status
	}
	if !ok {
		return res.Status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			res.Status, valid[0], strings.TrimSpace(string(res.Body)))
	}
	if len(res.Body) == 0 || result == nil {
		return res.Status, nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = res.Body
		return res.Status, nil
	}
	return res.Status, json.Unmarshal(res.Body, result)
}

// RawGet gets the resource from path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	res, err := c.Do(http.MethodGet, path, nil, nil)
	return expect(res, err, result, http.StatusOK, http.StatusNoContent)
}

// RawGetWithHeader is RawGet with additional request headers. It also returns the response header.
func (c Client) RawGetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	res, err := c.Do(http.MethodGet, path, header, nil)
	status, err := expect(res, err, result, http.StatusOK, http.StatusNoContent)
	return status, res.Header, err
}

// RawPost posts a resource to path. Expects http.StatusCreated as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	res, err := c.Do(http.MethodPost, path, nil, body)
	return expect(res, err, result, http.StatusCreated, http.StatusOK)
}

// RawPut puts a resource to path. Expects http.StatusOK as response.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	res, err := c.Do(http.MethodPut, path, nil, body)
	return expect(res, err, result, http.StatusOK)
}

// RawPatch patches the resource at path. Expects http.StatusOK as response.
func (c Client) RawPatch(path string, body interface{}, result interface{}) (int, error) {
	res, err := c.Do(http.MethodPatch, path, nil, body)
	return expect(res, err, result, http.StatusOK)
}

// RawDelete deletes the resource at path. Expects http.StatusNoContent as response, otherwise it will
// flag an error.
func (c Client) RawDelete(path string) (int, error) {
	res, err := c.Do(http.MethodDelete, path, nil, nil)
	return expect(res, err, nil, http.StatusNoContent)
}

// Collection represents the collection of a particular resource
type Collection struct {
	client     Client
	resource   string
	parameters url.Values
}

// Collection returns a new collection client
func (c Client) Collection(resource string) Collection {
	return Collection{client: c, resource: resource, parameters: url.Values{}}
}

func (r Collection) with(key, value string) Collection {
	parameters := url.Values{}
	for k, vs := range r.parameters {
		parameters[k] = append([]string(nil), vs...)
	}
	parameters.Add(key, value)
	r.parameters = parameters
	return r
}

// WithParameter returns a new collection with a query parameter added
func (r Collection) WithParameter(key string, value string) Collection {
	return r.with(key, value)
}

// WithFilter returns a new collection with an equality filter on a property
func (r Collection) WithFilter(key string, value string) Collection {
	return r.with("filter."+key, value)
}

// Path returns the collection path including the query parameters
func (r Collection) Path() string {
	path := "/" + core.Plural(r.resource)
	if len(r.parameters) > 0 {
		path += "?" + r.parameters.Encode()
	}
	return path
}

// Create creates a new item. Expects http.StatusCreated.
func (r Collection) Create(body interface{}, result interface{}) (int, error) {
	return r.client.RawPost(r.Path(), body, result)
}

// List lists the collection with its current parameters. Only the requested page is returned.
func (r Collection) List(result interface{}) (int, error) {
	return r.client.RawGet(r.Path(), result)
}

// Item returns the client for the item with the given id
func (r Collection) Item(id string) Item {
	return Item{collection: r.withoutParameters(), id: id}
}

func (r Collection) withoutParameters() Collection {
	r.parameters = url.Values{}
	return r
}

// FirstPage returns the first page of the collection
func (r Collection) FirstPage() Page {
	return Page{collection: r, page: 1, pageCount: 1}
}

// Item is a single item of a collection
type Item struct {
	collection Collection
	id         string
}

// WithParameter returns a new item with a query parameter added
func (r Item) WithParameter(key string, value string) Item {
	r.collection = r.collection.with(key, value)
	return r
}

// Path returns the item path including the query parameters
func (r Item) Path() string {
	path := "/" + core.Plural(r.collection.resource) + "/" + url.PathEscape(r.id)
	if len(r.collection.parameters) > 0 {
		path += "?" + r.collection.parameters.Encode()
	}
	return path
}

// Read reads the item
func (r Item) Read(result interface{}) (int, error) {
	return r.collection.client.RawGet(r.Path(), result)
}

// Update replaces fields of the item with PUT
func (r Item) Update(body interface{}, result interface{}) (int, error) {
	return r.collection.client.RawPut(r.Path(), body, result)
}

// Patch changes fields of the item with PATCH
func (r Item) Patch(body interface{}, result interface{}) (int, error) {
	return r.collection.client.RawPatch(r.Path(), body, result)
}

// Delete deletes the item
func (r Item) Delete() (int, error) {
	return r.collection.client.RawDelete(r.Path())
}

// Page is a page of a collection
type Page struct {
	collection Collection
	page       int
	pageCount  int
	totalCount int
}

// HasData returns true if the page exists
func (p Page) HasData() bool {
	return p.page <= p.pageCount
}

// TotalCount returns the total number of items, known after Get
func (p Page) TotalCount() int {
	return p.totalCount
}

// Get reads the page into result and updates the page count from the response
func (p *Page) Get(result interface{}) (int, error) {
	path := p.collection.with("page", strconv.Itoa(p.page)).Path()
	status, header, err := p.collection.client.RawGetWithHeader(path, nil, result)
	if err != nil {
		return status, err
	}
	if pageCount, err := strconv.Atoi(header.Get("Pagination-Page-Count")); err == nil {
		p.pageCount = pageCount
	}
	if totalCount, err := strconv.Atoi(header.Get("Pagination-Total-Count")); err == nil {
		p.totalCount = totalCount
	}
	return status, nil
}

// Next returns the next page
func (p Page) Next() Page {
	p.page++
	return p
}
