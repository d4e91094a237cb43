// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/scaffold/core"
	"github.com/relabs-tech/scaffold/core/logger"
	"github.com/relabs-tech/scaffold/core/projection"
)

// Request is a resource request. Receive them
// with HandleResourceRequest()
type Request struct {
	// Resource for which this request is made
	Resource string
	// ResourceID is the primary key from the request URL, empty for list and create requests
	ResourceID string
	// Operation for this request
	Operation core.Operation
	// Selectors are the route variables of the request URL
	Selectors map[string]string
	// Parameters are the query parameters from the request URL
	Parameters map[string]string
}

type requestHandler func(ctx context.Context, request Request, data []byte) ([]byte, error)

// HandleResourceRequest installs an in-band interceptor for a given resource and a set of operations.
// If no operations are specified, the handler will be installed for the Read operation only.
//
// Any returned non-nil error will abort the operation. For write operations that is
// a 400 (bad request), for read operations a 500 (internal server error).
//
// If the handler returns a non-nil []byte, this will replace the original data. In case of Read and List,
// the user will see the handler's version. In case of Create or Update, the handler's version is passed to the
// store and the stored record is returned to the user. For the Delete operation, data will always be nil and
// the returned data is ignored.
func (b *Backend) HandleResourceRequest(resource string, handler func(ctx context.Context, request Request, data []byte) ([]byte, error),
	operations ...core.Operation) {
	if _, ok := b.registry.Lookup(resource); !ok {
		logger.Default().Fatalf("handle resource request for %s: no such resource", resource)
	}

	if len(operations) == 0 {
		operations = []core.Operation{core.OperationRead}
	}
	for _, operation := range operations {
		key := requestKey(resource, operation)
		if _, ok := b.interceptors[key]; ok {
			logger.Default().Fatalf("resource request handler for %s already installed", key)
		}
		logger.Default().Debugf("install resource request handler for %s", key)
		b.interceptors[key] = handler
	}
}

// HandleProjection installs a hook which is called for every projected record of resource,
// including related records of that resource in expansions.
func (b *Backend) HandleProjection(resource string, hook projection.Hook) {
	if _, ok := b.registry.Lookup(resource); !ok {
		logger.Default().Fatalf("handle projection for %s: no such resource", resource)
	}
	logger.Default().Debugf("install projection hook for %s", resource)
	b.projector.HandleProjection(resource, hook)
}

func requestKey(resource string, operation core.Operation) string {
	return resource + "(" + string(operation) + ")"
}

// intercept calls the interceptor for the exchange, if there is one. v is marshalled
// to JSON before it is passed to the interceptor.
func (b *Backend) intercept(ctx context.Context, x Exchange, v interface{}) ([]byte, error) {
	resource := x.Resource.Descriptor.Resource
	interceptor, ok := b.interceptors[requestKey(resource, x.Operation)]
	if !ok {
		return nil, nil
	}
	var data []byte
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	values := x.request.URL.Query()
	parameters := make(map[string]string, len(values))
	for key := range values {
		parameters[key] = values.Get(key)
	}
	return interceptor(ctx,
		Request{
			Resource:   resource,
			ResourceID: x.ID,
			Operation:  x.Operation,
			Selectors:  x.Vars,
			Parameters: parameters,
		},
		data)
}
