// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/scaffold/core"
	"github.com/relabs-tech/scaffold/core/access"
	"github.com/relabs-tech/scaffold/core/backend"
	"github.com/relabs-tech/scaffold/core/query"
	"github.com/relabs-tech/scaffold/core/record"
)

// errorBody decodes an error response
func errorBody(t *testing.T, body []byte) map[string]string {
	t.Helper()
	var e map[string]string
	require.NoError(t, json.Unmarshal(body, &e), string(body))
	return e
}

func TestReadWithNestedProjection(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)

	var body []byte
	_, err := s.client.RawGet("/posts/1?expand=author.address&include=author.balance,author.address.updated_at"+
		"&exclude=author.address.created_at&pretty=false", &body)
	require.NoError(t, err)
	assert.Equal(t,
		`{"author":{"address":{"city":"Berlin","id":1,"updated_at":"u"},"balance":42,"id":1,"name":"Ann"},"id":1,"status":"published","title":"Hello"}`,
		string(body))

	// without parameters relations stay foreign keys and hidden fields stay hidden
	_, err = s.client.RawGet("/authors/1?pretty=false", &body)
	require.NoError(t, err)
	assert.Equal(t, `{"address":1,"id":1,"name":"Ann"}`, string(body))
}

func TestReadComputedRelation(t *testing.T) {
	s := createTestService(t)
	seed(t, s.posts, map[string]interface{}{"title": "Counted", "word_count": 12})

	var post map[string]interface{}
	_, err := s.client.RawGet("/posts/1?expand=word_count", &post)
	require.NoError(t, err)
	assert.Equal(t, float64(120), post["word_count"])

	// unknown paths are inert
	_, err = s.client.RawGet("/posts/1?expand=nothing.at.all&exclude=nope", &post)
	require.NoError(t, err)
	assert.Equal(t, "Counted", post["title"])
}

func TestReadNotFound(t *testing.T) {
	s := createTestService(t)
	res, err := s.client.Do(http.MethodGet, "/posts/42", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, map[string]string{"type": "invalid_request_error", "message": "No such object"}, errorBody(t, res.Body))
	assert.Equal(t, "application/json; charset=utf-8", res.Header.Get("Content-Type"))
}

func TestListPagination(t *testing.T) {
	s := createTestService(t)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		seed(t, s.posts, map[string]interface{}{"title": title})
	}

	var posts []map[string]interface{}
	_, header, err := s.client.RawGetWithHeader("/posts?per_page=2&page=2", nil, &posts)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "c", posts[0]["title"])
	assert.Equal(t, "d", posts[1]["title"])

	assert.Equal(t, "5", header.Get("X-Total-Count"))
	assert.Equal(t, "3", header.Get("Pagination-Page-Count"))
	assert.Equal(t, "2", header.Get("Pagination-Current-Page"))
	assert.Equal(t, "2", header.Get("Pagination-Limit"))
	assert.Equal(t, `</posts?page=2&per_page=2>; rel="self", `+
		`</posts?page=1&per_page=2>; rel="first", `+
		`</posts?page=1&per_page=2>; rel="previous", `+
		`</posts?page=3&per_page=2>; rel="next", `+
		`</posts?page=3&per_page=2>; rel="last"`, header.Get("Link"))

	// legacy offset parameters are translated into pages
	_, header, err = s.client.RawGetWithHeader("/posts?limit=2&start=4", nil, &posts)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "e", posts[0]["title"])
	assert.Equal(t, "3", header.Get("Pagination-Current-Page"))
	assert.NotContains(t, header.Get("Link"), "start=")

	// beyond the last page
	_, header, err = s.client.RawGetWithHeader("/posts?page=9", nil, &posts)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, "5", header.Get("X-Total-Count"))
	assert.Equal(t, "1", header.Get("Pagination-Page-Count"))
}

func TestListEmptyCollection(t *testing.T) {
	s := createTestService(t)
	var body []byte
	_, header, err := s.client.RawGetWithHeader("/posts?pretty=false", nil, &body)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, "0", header.Get("X-Total-Count"))
	assert.Equal(t, `</posts?page=1&pretty=false>; rel="self", </posts?page=1&pretty=false>; rel="first", `+
		`</posts?page=1&pretty=false>; rel="last"`, header.Get("Link"))
}

func TestListFilterSearchAndSort(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)
	seed(t, s.posts, map[string]interface{}{"title": "Draft one", "status": "draft", "author": 1})
	seed(t, s.posts, map[string]interface{}{"title": "Draft 100%", "status": "draft"})

	titles := func(path string) []string {
		t.Helper()
		var posts []map[string]interface{}
		_, err := s.client.RawGet(path, &posts)
		require.NoError(t, err)
		var result []string
		for _, p := range posts {
			result = append(result, p["title"].(string))
		}
		return result
	}

	assert.Equal(t, []string{"Draft one", "Draft 100%"}, titles("/posts?filter.status=draft"))
	assert.Equal(t, []string{"Hello", "Draft one"}, titles("/posts?filter.author=1"))
	assert.Equal(t, []string{"Hello", "Draft one"}, titles("/posts?filter.status=draft&filter.status=published&filter.author=1"))
	assert.Equal(t, []string{"Draft 100%"}, titles("/posts?search=100%25"))
	assert.Equal(t, []string{"Hello"}, titles("/posts?search=hel"))
	assert.Equal(t, []string{"Hello", "Draft one", "Draft 100%"}, titles("/posts?sort=-title"))
	assert.Equal(t, []string{"Draft 100%", "Draft one", "Hello"}, titles("/posts?sort=title"))

	// list responses are projected like single records
	var posts []map[string]interface{}
	_, err := s.client.RawGet("/posts?filter.author=1&expand=author", &posts)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "Ann", posts[0]["author"].(map[string]interface{})["name"])
}

func TestListRejectsInvalidParameters(t *testing.T) {
	s := createTestService(t)

	for path, expected := range map[string]map[string]string{
		"/posts?filter.title=x": {
			"type": "invalid_request_error", "message": "Invalid filter field 'title'", "param": "title",
		},
		"/posts?filter.0=x": {
			"type": "invalid_request_error", "message": "Invalid filter field '0'", "param": "0",
		},
		"/posts?filter.status=x&filter.aa=y&filter.zz=z": {
			"type": "invalid_request_error", "message": "Invalid filter field 'aa'", "param": "aa",
		},
		"/posts?sort=secret": {
			"type": "invalid_request_error", "message": "Invalid sort field 'secret'", "param": "sort",
		},
		"/posts?page=two": {
			"type": "invalid_request_error", "message": "Invalid integer value for 'page'", "param": "page",
		},
		"/posts?per_page=": {},
		"/posts?pretty=maybe": {
			"type": "invalid_request_error", "message": "Invalid boolean value for 'pretty'", "param": "pretty",
		},
	} {
		t.Run(path, func(t *testing.T) {
			res, err := s.client.Do(http.MethodGet, path, nil, nil)
			require.NoError(t, err)
			if len(expected) == 0 {
				assert.Equal(t, http.StatusOK, res.Status)
				return
			}
			assert.Equal(t, http.StatusBadRequest, res.Status)
			assert.Equal(t, expected, errorBody(t, res.Body))
		})
	}
}

func TestCreate(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)

	var post map[string]interface{}
	status, err := s.client.RawPost("/posts?expand=author", map[string]interface{}{"title": "New", "author": 1}, &post)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(2), post["id"])
	assert.Equal(t, "Ann", post["author"].(map[string]interface{})["name"])

	rec, err := s.posts.Find(context.Background(), "2")
	require.NoError(t, err)
	author, _ := rec.Value("author")
	assert.Equal(t, int64(1), author)
}

func TestCreateRejectsInvalidBodies(t *testing.T) {
	s := createTestService(t)

	for name, tc := range map[string]struct {
		body     interface{}
		header   map[string]string
		status   int
		expected map[string]string
	}{
		"missing required": {
			body:     map[string]interface{}{"status": "draft"},
			status:   http.StatusBadRequest,
			expected: map[string]string{"type": "invalid_request_error", "message": "title: field is required", "param": "title"},
		},
		"unknown field": {
			body:     map[string]interface{}{"title": "x", "colour": "red"},
			status:   http.StatusBadRequest,
			expected: map[string]string{"type": "invalid_request_error", "message": "colour: unknown field", "param": "colour"},
		},
		"read-only field": {
			body:     map[string]interface{}{"title": "x", "id": 7},
			status:   http.StatusForbidden,
			expected: map[string]string{"type": "invalid_request_error", "message": "id: field is read-only", "param": "id"},
		},
		"not an object": {
			body:     []byte(`[{"title":"x"}]`),
			status:   http.StatusBadRequest,
			expected: map[string]string{"type": "invalid_request_error", "message": "Request body must be a JSON object"},
		},
		"broken json": {
			body:     []byte(`{"title":`),
			status:   http.StatusBadRequest,
			expected: map[string]string{"type": "invalid_request_error", "message": "Invalid JSON in request body"},
		},
		"trailing data": {
			body:     []byte(`{"title":"x"} {"title":"y"}`),
			status:   http.StatusBadRequest,
			expected: map[string]string{"type": "invalid_request_error", "message": "Invalid JSON in request body"},
		},
		"too large": {
			body:     []byte(`{"title":"` + strings.Repeat("a", 1<<20) + `"}`),
			status:   http.StatusRequestEntityTooLarge,
			expected: map[string]string{"type": "invalid_request_error", "message": "Request body is too large"},
		},
		"media type": {
			body:   []byte(`title=x`),
			header: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			status: http.StatusUnsupportedMediaType,
			expected: map[string]string{"type": "invalid_request_error",
				"message": "Unsupported media type 'application/x-www-form-urlencoded', expected application/json"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := s.client.Do(http.MethodPost, "/posts", tc.header, tc.body)
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.expected, errorBody(t, res.Body))
		})
	}

	_, total, err := s.posts.Query(context.Background(), query.Build(query.Options{}))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateValidatesSchema(t *testing.T) {
	s := createTestService(t)
	res, err := s.client.Do(http.MethodPost, "/posts", nil, map[string]interface{}{"title": 5})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "title", errorBody(t, res.Body)["param"])
}

func TestUpdate(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)

	var post map[string]interface{}
	_, err := s.client.RawPatch("/posts/1", map[string]interface{}{"title": "Changed"}, &post)
	require.NoError(t, err)
	assert.Equal(t, "Changed", post["title"])
	assert.Equal(t, "published", post["status"])

	// the primary key may be repeated in the body if it matches
	_, err = s.client.RawPut("/posts/1", map[string]interface{}{"id": 1, "status": "draft"}, &post)
	require.NoError(t, err)
	assert.Equal(t, "draft", post["status"])

	res, err := s.client.Do(http.MethodPut, "/posts/1", nil, map[string]interface{}{"id": 2})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, map[string]string{"type": "invalid_request_error", "message": "identifier mismatch for post", "param": "id"},
		errorBody(t, res.Body))

	res, err = s.client.Do(http.MethodPatch, "/posts/99", nil, map[string]interface{}{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestDelete(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)

	status, err := s.client.RawDelete("/posts/1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	status, err = s.client.RawDelete("/posts/1")
	assert.Error(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnrecognizedRoutes(t *testing.T) {
	s := createTestService(t)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/comments"},
		{http.MethodPost, "/posts/1"},
		{http.MethodDelete, "/posts"},
	} {
		res, err := s.client.Do(r.method, r.path, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, res.Status, r.path)
		e := errorBody(t, res.Body)
		assert.Equal(t, "invalid_request_error", e["type"])
		assert.Equal(t, "Unrecognized request URL ("+r.method+": "+r.path+")", e["message"])
	}
}

func TestPermissions(t *testing.T) {
	s := createTestService(t, withAuthorization())
	s.seedBlog(t)
	seed(t, s.authors, map[string]interface{}{"name": "Bob"})

	// public may read, but not write
	_, err := s.clientNoAuth.RawGet("/posts", nil)
	assert.NoError(t, err)
	res, err := s.clientNoAuth.Do(http.MethodPost, "/posts", nil, map[string]interface{}{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, map[string]string{"type": "invalid_request_error", "message": "You do not have permission to perform this action"},
		errorBody(t, res.Body))

	// everybody who is authenticated may create posts
	status, err := s.clientNoAuth.WithRole("reader").RawPost("/posts", map[string]interface{}{"title": "x"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	status, _ = s.clientNoAuth.WithRole("reader").RawDelete("/posts/1")
	assert.Equal(t, http.StatusForbidden, status)

	// addresses are not listable
	status, _ = s.clientNoAuth.RawGet("/addresses", nil)
	assert.Equal(t, http.StatusForbidden, status)

	// authors may only change themselves
	ann := s.clientNoAuth.WithAuthorization(&access.Authorization{
		Roles:     []string{"author"},
		Selectors: map[string]string{"author_id": "1"},
	})
	_, err = ann.RawPatch("/authors/1", map[string]interface{}{"name": "Anna"}, nil)
	assert.NoError(t, err)
	status, _ = ann.RawPatch("/authors/2", map[string]interface{}{"name": "Bobby"}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// the permission check happens before the body is looked at
	res, err = s.clientNoAuth.Do(http.MethodPost, "/posts", map[string]string{"Content-Type": "text/plain"}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.Status)

	// admin may do everything
	status, err = s.client.RawDelete("/posts/1")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestPrettyOutput(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)

	get := func(path string, header map[string]string) string {
		t.Helper()
		var body []byte
		_, _, err := s.client.RawGetWithHeader(path, header, &body)
		require.NoError(t, err)
		return string(body)
	}

	assert.Equal(t, `{"address":1,"id":1,"name":"Ann"}`, get("/authors/1", nil))
	assert.Equal(t, "{\n  \"address\": 1,\n  \"id\": 1,\n  \"name\": \"Ann\"\n}\n", get("/authors/1?pretty=true", nil))
	assert.True(t, strings.HasPrefix(get("/authors/1", map[string]string{"User-Agent": "curl/8.4.0"}), "{\n"))
	assert.True(t, strings.HasPrefix(get("/authors/1", map[string]string{"User-Agent": "Mozilla/5.0"}), "{\n"))
	assert.Equal(t, `{"address":1,"id":1,"name":"Ann"}`,
		get("/authors/1", map[string]string{"User-Agent": "Mozilla/5.0", "X-Requested-With": "XMLHttpRequest"}))
	assert.Equal(t, `{"address":1,"id":1,"name":"Ann"}`, get("/authors/1?pretty=false", map[string]string{"User-Agent": "curl/8.4.0"}))
}

func TestHandleResourceRequest(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)

	s.backend.HandleResourceRequest("post", func(ctx context.Context, request backend.Request, data []byte) ([]byte, error) {
		var post map[string]interface{}
		if err := json.Unmarshal(data, &post); err != nil {
			return nil, err
		}
		if post["title"] == "forbidden" {
			return nil, errors.New("this title is not allowed")
		}
		post["title"] = strings.ToUpper(post["title"].(string))
		return json.Marshal(post)
	}, core.OperationCreate)

	s.backend.HandleResourceRequest("author", func(ctx context.Context, request backend.Request, data []byte) ([]byte, error) {
		assert.Equal(t, "1", request.ResourceID)
		assert.Equal(t, "1", request.Selectors["author_id"])
		assert.Equal(t, "x", request.Parameters["extra"])
		return nil, errors.New("reading authors is broken")
	})

	var post map[string]interface{}
	_, err := s.client.RawPost("/posts", map[string]interface{}{"title": "loud"}, &post)
	require.NoError(t, err)
	assert.Equal(t, "LOUD", post["title"])

	res, err := s.client.Do(http.MethodPost, "/posts", nil, map[string]interface{}{"title": "forbidden"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "this title is not allowed", errorBody(t, res.Body)["message"])

	res, err = s.client.Do(http.MethodGet, "/authors/1?extra=x", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, map[string]string{"type": "api_error", "message": "An error occurred with our API"}, errorBody(t, res.Body))
}

func TestHandleProjection(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)

	s.backend.HandleProjection("author", func(ctx context.Context, rec record.Record, fields map[string]interface{}) error {
		fields["display"] = fields["name"].(string) + " (" + rec.ID() + ")"
		return nil
	})

	var post map[string]interface{}
	_, err := s.client.RawGet("/posts/1?expand=author", &post)
	require.NoError(t, err)
	assert.Equal(t, "Ann (1)", post["author"].(map[string]interface{})["display"])
}

func TestCancelledRequestWritesNothing(t *testing.T) {
	s := createTestService(t)
	s.seedBlog(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.client.WithContext(ctx).Do(http.MethodGet, "/posts/1", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Body)
}

func TestCORS(t *testing.T) {
	s := createTestService(t, withCORS())
	res, err := s.client.Do(http.MethodOptions, "/posts", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, res.Header.Get("Access-Control-Expose-Headers"), "X-Total-Count")
}

func TestVersion(t *testing.T) {
	s := createTestService(t, withAuthorization())

	var version struct {
		Version string `json:"version"`
	}
	_, err := s.client.RawGet("/version", &version)
	require.NoError(t, err)
	assert.Equal(t, "unset", version.Version)

	backend.Version = "another version"
	defer func() { backend.Version = "unset" }()
	_, err = s.client.RawGet("/version", &version)
	require.NoError(t, err)
	assert.Equal(t, "another version", version.Version)

	status, _ := s.clientNoAuth.RawGet("/version", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAuthorizationRoute(t *testing.T) {
	s := createTestService(t)
	status, err := s.clientNoAuth.RawGet("/authorization", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	var auth access.Authorization
	_, err = s.client.RawGet("/authorization", &auth)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, auth.Roles)
}
