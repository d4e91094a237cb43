// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package memstore provides an in-memory record store
//
// The store is meant for tests and for services without a database. It evaluates list
// queries with query.Apply, so it honors the same filter, search, sort and paging
// semantics as the Postgres store.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/relabs-tech/scaffold/core/query"
	"github.com/relabs-tech/scaffold/core/record"
)

// Store is an in-memory record store for one resource. It is safe for concurrent use.
type Store struct {
	typ   *record.Descriptor
	newID func() interface{}

	mutex   sync.RWMutex
	objects map[string]*record.Object
	order   []string
}

// Option configures a store
type Option func(*Store)

// WithSequence makes the store assign ascending integer primary keys starting at 1.
// Without it, primary keys are random uuids.
func WithSequence() Option {
	return func(s *Store) {
		var next int64
		s.newID = func() interface{} {
			next++
			return next
		}
	}
}

// New returns an empty store for the resource
func New(d *record.Descriptor, options ...Option) *Store {
	s := &Store{
		typ:     d,
		newID:   func() interface{} { return uuid.New().String() },
		objects: map[string]*record.Object{},
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Put stores values as they are, including the primary key. It bypasses validation
// and is used for seeding. Later creates never reuse a seeded primary key.
func (s *Store) Put(values map[string]interface{}) record.Record {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	o := record.NewObject(s.typ, values)
	s.insert(o)
	return record.NewObject(s.typ, o.All())
}

func (s *Store) insert(o *record.Object) {
	id := o.ID()
	if _, ok := s.objects[id]; !ok {
		s.order = append(s.order, id)
	}
	s.objects[id] = o
}

// Find implements record.Store
func (s *Store) Find(ctx context.Context, id string) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	o, ok := s.objects[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	return record.NewObject(s.typ, o.All()), nil
}

// Create implements record.Store
func (s *Store) Create(ctx context.Context, fields map[string]interface{}) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.typ.Validate(fields, true); err != nil {
		return nil, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	values := make(map[string]interface{}, len(fields)+1)
	for key, value := range fields {
		values[key] = value
	}
	// ids taken by seeded records are skipped
	var o *record.Object
	for attempt := 0; attempt <= len(s.objects); attempt++ {
		values[s.typ.PrimaryKey] = s.newID()
		o = record.NewObject(s.typ, values)
		if _, exists := s.objects[o.ID()]; !exists {
			break
		}
		o = nil
	}
	if o == nil {
		return nil, record.ValidationErrors{{Field: s.typ.PrimaryKey, Message: "value already exists"}}
	}
	s.insert(o)
	return record.NewObject(s.typ, values), nil
}

// Set implements record.Store
func (s *Store) Set(ctx context.Context, id string, fields map[string]interface{}) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.typ.Validate(fields, false); err != nil {
		return nil, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	values := o.All()
	for key, value := range fields {
		values[key] = value
	}
	s.objects[id] = record.NewObject(s.typ, values)
	return record.NewObject(s.typ, values), nil
}

// Delete implements record.Store
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.objects[id]; !ok {
		return record.ErrNotFound
	}
	delete(s.objects, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Query implements record.Store
func (s *Store) Query(ctx context.Context, q query.ListQuery) ([]record.Record, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mutex.RLock()
	objects := make([]*record.Object, 0, len(s.order))
	for _, id := range s.order {
		objects = append(objects, s.objects[id])
	}
	s.mutex.RUnlock()

	page, total := query.Apply(q, objects)
	records := make([]record.Record, len(page))
	for i, o := range page {
		records[i] = record.NewObject(s.typ, o.All())
	}
	return records, total, nil
}
