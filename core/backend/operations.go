// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/scaffold/core"
	"github.com/relabs-tech/scaffold/core/apierror"
	"github.com/relabs-tech/scaffold/core/logger"
	"github.com/relabs-tech/scaffold/core/pagination"
	"github.com/relabs-tech/scaffold/core/record"
	"github.com/relabs-tech/scaffold/core/schema"
)

// maxBodySize is the largest accepted request body
const maxBodySize = 1 << 20

func (b *Backend) listRoute() route {
	return route{
		operation: core.OperationList,
		parse: func(ctx context.Context, x Exchange) (Exchange, error) {
			x, err := b.parseRequest(ctx, x)
			if err != nil {
				return x, err
			}
			q, err := x.Params.ListQuery(x.Resource.Descriptor)
			if err != nil {
				return x, err
			}
			return x.WithQuery(q), nil
		},
		query: func(ctx context.Context, x Exchange) (Exchange, error) {
			records, totalCount, err := x.Resource.Store.Query(ctx, x.Query)
			if err != nil {
				return x, err
			}
			return x.WithRecords(records, totalCount), nil
		},
		transform: func(ctx context.Context, x Exchange) (Exchange, error) {
			list, err := b.projector.ProjectAll(ctx, x.Records, x.Params.Trees)
			if err != nil {
				return x, err
			}
			payload := make([]interface{}, len(list))
			for i, fields := range list {
				payload[i] = fields
			}
			data, err := b.intercept(ctx, x, payload)
			if err != nil {
				return x, apierror.API("An error occurred with our API", err)
			}
			if data != nil {
				x = x.WithResponse(http.StatusOK, json.RawMessage(data))
			} else {
				x = x.WithResponse(http.StatusOK, payload)
			}
			state := x.Params.PaginationState(x.Query, x.TotalCount)
			return x.WithPagination(pagination.Paginate(state, requestURL(x.request))), nil
		},
	}
}

func (b *Backend) readRoute() route {
	return route{
		operation: core.OperationRead,
		parse:     b.parseRequest,
		query:     b.find,
		transform: b.project(http.StatusOK),
	}
}

func (b *Backend) createRoute() route {
	return route{
		operation: core.OperationCreate,
		parse:     b.parseWrite,
		query: func(ctx context.Context, x Exchange) (Exchange, error) {
			rec, err := x.Resource.Store.Create(ctx, x.Body)
			if err != nil {
				return x, err
			}
			logger.FromContext(ctx).Debugf("created %s %s", x.Resource.Descriptor.Resource, rec.ID())
			return x.WithRecords([]record.Record{rec}, 1), nil
		},
		transform: b.project(http.StatusCreated),
	}
}

func (b *Backend) updateRoute() route {
	return route{
		operation: core.OperationUpdate,
		parse:     b.parseWrite,
		query: func(ctx context.Context, x Exchange) (Exchange, error) {
			rec, err := x.Resource.Store.Set(ctx, x.ID, x.Body)
			if err != nil {
				return x, err
			}
			return x.WithRecords([]record.Record{rec}, 1), nil
		},
		transform: b.project(http.StatusOK),
	}
}

func (b *Backend) deleteRoute() route {
	return route{
		operation: core.OperationDelete,
		parse:     b.parseRequest,
		query: func(ctx context.Context, x Exchange) (Exchange, error) {
			if _, err := b.intercept(ctx, x, nil); err != nil {
				return x, apierror.BadRequest(err.Error(), "").Wrap(err)
			}
			if err := x.Resource.Store.Delete(ctx, x.ID); err != nil {
				return x, err
			}
			logger.FromContext(ctx).Debugf("deleted %s %s", x.Resource.Descriptor.Resource, x.ID)
			return x, nil
		},
		transform: func(ctx context.Context, x Exchange) (Exchange, error) {
			return x.WithResponse(http.StatusNoContent, nil), nil
		},
	}
}

// parseRequest checks the permission and parses the query parameters
func (b *Backend) parseRequest(ctx context.Context, x Exchange) (Exchange, error) {
	if err := b.authorize(ctx, x); err != nil {
		return x, err
	}
	params, err := ParseParams(x.request.URL.Query())
	if err != nil {
		return x, err
	}
	return x.WithParams(params), nil
}

// parseWrite is parseRequest plus decoding and validation of the body
func (b *Backend) parseWrite(ctx context.Context, x Exchange) (Exchange, error) {
	x, err := b.parseRequest(ctx, x)
	if err != nil {
		return x, err
	}
	body, err := decodeBody(x.request)
	if err != nil {
		return x, err
	}

	d := x.Resource.Descriptor
	if x.ID != "" {
		if id, ok := body[d.PrimaryKey]; ok {
			if fmt.Sprint(id) != x.ID {
				return x, apierror.BadRequest("identifier mismatch for "+d.Resource, d.PrimaryKey)
			}
			delete(body, d.PrimaryKey)
		}
	}

	if data, err := b.intercept(ctx, x, body); err != nil {
		return x, apierror.BadRequest(err.Error(), "").Wrap(err)
	} else if data != nil {
		replaced := map[string]interface{}{}
		if err := json.Unmarshal(data, &replaced); err != nil {
			return x, apierror.API("An error occurred with our API", err)
		}
		body = replaced
	}

	if x.Resource.SchemaID != "" && b.validator.HasSchema(x.Resource.SchemaID) {
		if err := b.validator.ValidateStruct(body, x.Resource.SchemaID); err != nil {
			return x, schemaError(err)
		}
	}
	return x.WithBody(body), nil
}

// decodeBody decodes a JSON object from the request body
func decodeBody(r *http.Request) (map[string]interface{}, error) {
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			return nil, apierror.UnsupportedMediaType(contentType)
		}
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, apierror.BadRequest("Cannot read request body", "").Wrap(err)
	}
	if len(data) > maxBodySize {
		return nil, apierror.InvalidRequest(http.StatusRequestEntityTooLarge, "Request body is too large", "")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, apierror.BadRequest("Request body must be a JSON object", "")
	}
	// exactly one value, nothing after it
	if !json.Valid(data) {
		return nil, apierror.BadRequest("Invalid JSON in request body", "")
	}
	body := map[string]interface{}{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return nil, apierror.BadRequest("Invalid JSON in request body", "").Wrap(err)
	}
	return normalizeNumbers(body).(map[string]interface{}), nil
}

// normalizeNumbers turns JSON numbers into int64 where possible and float64 otherwise
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		for key, value := range t {
			t[key] = normalizeNumbers(value)
		}
		return t
	case []interface{}:
		for i, value := range t {
			t[i] = normalizeNumbers(value)
		}
		return t
	}
	return v
}

func (b *Backend) find(ctx context.Context, x Exchange) (Exchange, error) {
	rec, err := x.Resource.Store.Find(ctx, x.ID)
	if err != nil {
		return x, err
	}
	return x.WithRecords([]record.Record{rec}, 1), nil
}

// project returns a transform stage which projects the single record of the exchange
func (b *Backend) project(status int) stage {
	return func(ctx context.Context, x Exchange) (Exchange, error) {
		fields, err := b.projector.Project(ctx, x.Record(), x.Params.Trees)
		if err != nil {
			return x, err
		}
		if x.Operation == core.OperationRead {
			data, err := b.intercept(ctx, x, fields)
			if err != nil {
				return x, apierror.API("An error occurred with our API", err)
			}
			if data != nil {
				return x.WithResponse(status, json.RawMessage(data)), nil
			}
		}
		return x.WithResponse(status, fields), nil
	}
}

// requestURL returns the absolute URL of the request if the host is known
func requestURL(r *http.Request) *url.URL {
	u := *r.URL
	if u.Host == "" && r.Host != "" {
		u.Host = r.Host
		u.Scheme = "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			u.Scheme = "https"
		}
	}
	return &u
}

// schemaError turns a schema violation into a bad request naming the first offending field
func schemaError(err error) error {
	var serr *schema.Error
	if !errors.As(err, &serr) || len(serr.Details) == 0 {
		return apierror.BadRequest("Request body does not follow its schema", "").Wrap(err)
	}
	first := serr.Details[0]
	message := first.Description
	if first.Field != "" {
		message = first.Field + ": " + message
	}
	return apierror.BadRequest(message, first.Field).Wrap(err)
}
