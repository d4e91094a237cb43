// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/scaffold/core"
	"github.com/relabs-tech/scaffold/core/access"
	"github.com/relabs-tech/scaffold/core/apierror"
	"github.com/relabs-tech/scaffold/core/logger"
	"github.com/relabs-tech/scaffold/core/pagination"
	"github.com/relabs-tech/scaffold/core/query"
	"github.com/relabs-tech/scaffold/core/record"
	"github.com/relabs-tech/scaffold/core/registry"
)

// State is the processing state of a request
type State int

// all states of the route pipeline
const (
	StateNew State = iota
	StateParsed
	StateQueried
	StateTransformed
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateNew:         "new",
	StateParsed:      "parsed",
	StateQueried:     "queried",
	StateTransformed: "transformed",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Exchange is the state of one request on its way through a route. Stages never
// modify an exchange, they return a modified copy.
type Exchange struct {
	State     State
	Operation core.Operation
	Resource  *registry.Resource
	// ID is the primary key from the request URL, empty for collection routes
	ID string
	// Vars are the route variables, selectors are matched against them
	Vars   map[string]string
	Params Params
	// Body is the decoded request body of create and edit requests
	Body  map[string]interface{}
	Query query.ListQuery

	Records    []record.Record
	TotalCount int

	Status     int
	Payload    interface{}
	Pagination *pagination.Result

	request *http.Request
}

// WithState returns a copy in state s
func (x Exchange) WithState(s State) Exchange {
	x.State = s
	return x
}

// WithParams returns a copy with the parsed query parameters
func (x Exchange) WithParams(p Params) Exchange {
	x.Params = p
	return x
}

// WithBody returns a copy with the decoded request body
func (x Exchange) WithBody(body map[string]interface{}) Exchange {
	x.Body = body
	return x
}

// WithQuery returns a copy with the list query
func (x Exchange) WithQuery(q query.ListQuery) Exchange {
	x.Query = q
	return x
}

// WithRecords returns a copy with the records of the query stage
func (x Exchange) WithRecords(records []record.Record, totalCount int) Exchange {
	x.Records = records
	x.TotalCount = totalCount
	return x
}

// WithResponse returns a copy with the response status and payload
func (x Exchange) WithResponse(status int, payload interface{}) Exchange {
	x.Status = status
	x.Payload = payload
	return x
}

// WithPagination returns a copy with the pagination of a list response
func (x Exchange) WithPagination(p pagination.Result) Exchange {
	x.Pagination = &p
	return x
}

// Record returns the first record of the query stage
func (x Exchange) Record() record.Record {
	if len(x.Records) == 0 {
		return nil
	}
	return x.Records[0]
}

// Request returns the http request of the exchange
func (x Exchange) Request() *http.Request {
	return x.request
}

// stage is one step of a route. It must not write to the response.
type stage func(ctx context.Context, x Exchange) (Exchange, error)

// route is an operation as a sequence of parse, query and transform
type route struct {
	operation core.Operation
	parse     stage
	query     stage
	transform stage
}

// handler returns the http handler running the route for resource
func (b *Backend) handler(rt route, res *registry.Resource) http.HandlerFunc {
	steps := []struct {
		next State
		run  stage
	}{
		{StateParsed, rt.parse},
		{StateQueried, rt.query},
		{StateTransformed, rt.transform},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rlog := logger.FromContext(ctx)
		vars := mux.Vars(r)
		x := Exchange{
			State:     StateNew,
			Operation: rt.operation,
			Resource:  res,
			ID:        vars[res.Descriptor.Resource+"_id"],
			Vars:      vars,
			request:   r,
		}

		var err error
		for _, step := range steps {
			if x, err = step.run(ctx, x); err != nil {
				break
			}
			x = x.WithState(step.next)
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			x = x.WithState(StateFailed)
			if errors.Is(err, context.Canceled) {
				rlog.Debugf("%s %s cancelled in state %s", rt.operation, res.Descriptor.Resource, x.State)
				return
			}
			b.writeError(w, r, err)
			return
		}
		x = x.WithState(StateDone)
		b.writeExchange(w, r, x)
	}
}

// authorize checks the permission of the requester for the operation of the exchange
func (b *Backend) authorize(ctx context.Context, x Exchange) error {
	if !b.authorizationEnabled {
		return nil
	}
	auth := access.AuthorizationFromContext(ctx)
	if !x.Resource.Permits.Can(x.Operation, auth, x.Vars) {
		return apierror.Forbidden("You do not have permission to perform this action", "")
	}
	return nil
}

// translate maps store errors to structured errors
func translate(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, record.ErrNotFound) {
		return apierror.NotFound("No such object").Wrap(err)
	}
	var verrs record.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		message := first.Message
		if first.Field != "" {
			message = first.Field + ": " + message
		}
		if first.Permission {
			return apierror.Forbidden(message, first.Field).Wrap(err)
		}
		return apierror.BadRequest(message, first.Field).Wrap(err)
	}
	return err
}

func (b *Backend) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.From(translate(err))
	rlog := logger.FromContext(r.Context())
	if apiErr.Status >= http.StatusInternalServerError {
		rlog.WithError(err).Errorf("%s %s failed", r.Method, r.URL.Path)
	} else {
		rlog.WithError(err).Debugf("%s %s rejected with %d", r.Method, r.URL.Path, apiErr.Status)
	}
	b.writeJSON(w, r, apiErr.Status, apiErr.Body())
}

func (b *Backend) writeExchange(w http.ResponseWriter, r *http.Request, x Exchange) {
	if x.Pagination != nil {
		x.Pagination.Write(w.Header())
	}
	if x.Payload == nil {
		w.WriteHeader(x.Status)
		return
	}
	b.writeJSON(w, r, x.Status, x.Payload)
}
