// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package record defines persisted records, their schema descriptors and the store contract

A record is one persisted item of a resource. Its descriptor declares the fields, which of them are
hidden by default, which are relations to other resources, and which may be used for filtering and
searching. Stores own the records; the REST layer only reads them.
*/
package record

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/relabs-tech/scaffold/core/query"
)

// ErrNotFound is returned by stores if a record does not exist
var ErrNotFound = errors.New("record not found")

// Record is one persisted item
type Record interface {
	// Type returns the descriptor of the record's resource
	Type() *Descriptor
	// ID returns the primary key as string
	ID() string
	// Values returns the default field set, i.e. all fields which are not hidden.
	// The returned map is a fresh copy.
	Values() map[string]interface{}
	// Value returns any field, including hidden fields
	Value(name string) (interface{}, bool)
}

// Store is the persistence layer of one resource
type Store interface {
	Find(ctx context.Context, id string) (Record, error)
	Create(ctx context.Context, fields map[string]interface{}) (Record, error)
	Set(ctx context.Context, id string, fields map[string]interface{}) (Record, error)
	Delete(ctx context.Context, id string) error
	// Query executes a list query and returns one page of records plus the total
	// number of records matching the query
	Query(ctx context.Context, q query.ListQuery) ([]Record, int, error)
}

// Object is the generic record implementation
type Object struct {
	typ    *Descriptor
	values map[string]interface{}
}

// NewObject creates a new record of the given type. The values are copied.
func NewObject(typ *Descriptor, values map[string]interface{}) *Object {
	o := &Object{typ: typ, values: make(map[string]interface{}, len(values))}
	for key, value := range values {
		o.values[key] = value
	}
	return o
}

// Type implements Record
func (o *Object) Type() *Descriptor {
	return o.typ
}

// ID implements Record
func (o *Object) ID() string {
	id, ok := o.values[o.typ.PrimaryKey]
	if !ok || id == nil {
		return ""
	}
	return fmt.Sprint(id)
}

// Values implements Record
func (o *Object) Values() map[string]interface{} {
	values := make(map[string]interface{}, len(o.values))
	for key, value := range o.values {
		if o.typ.IsHidden(key) {
			continue
		}
		values[key] = value
	}
	return values
}

// Value implements Record
func (o *Object) Value(name string) (interface{}, bool) {
	value, ok := o.values[name]
	return value, ok
}

// All returns a copy of all values, including hidden ones
func (o *Object) All() map[string]interface{} {
	values := make(map[string]interface{}, len(o.values))
	for key, value := range o.values {
		values[key] = value
	}
	return values
}

// ValidationError is a single validation failure reported by a store
type ValidationError struct {
	Field   string
	Message string
	// Permission marks errors caused by writing something the requester may not write
	Permission bool
}

// ValidationErrors is a list of validation failures. Stores return it when the
// data passed to Create or Set is not acceptable.
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	var parts []string
	for _, e := range v {
		if e.Field != "" {
			parts = append(parts, e.Field+": "+e.Message)
		} else {
			parts = append(parts, e.Message)
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// sortByField brings the errors into a deterministic order
func (v ValidationErrors) sortByField() {
	sort.SliceStable(v, func(i, j int) bool { return v[i].Field < v[j].Field })
}
