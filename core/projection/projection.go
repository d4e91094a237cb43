// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package projection turns records into plain field mappings under an exclude/include/expand policy

The policy consists of three dotpath trees, typically parsed from the query parameters of a request:

	GET /posts/10?exclude=author.address.created_at&include=author.balance&expand=author.address

Projection of a record starts from its default (non-hidden) fields. Leaf entries of the exclude tree drop
fields, entries of the include tree add fields even if they are hidden, and entries of the expand tree replace
relation values with the projection of the related record. Recursion into a relation uses the sub-trees rooted
at the relation's field name, so the depth is bounded by the request, not by the data.

Sibling expansions are resolved concurrently. The final mapping is sorted by key, so the output is deterministic.
*/
package projection

import (
	"context"
	"reflect"

	"github.com/relabs-tech/scaffold/core/dotpath"
	"github.com/relabs-tech/scaffold/core/record"
	"golang.org/x/sync/errgroup"
)

// Trees is the projection policy of one level
type Trees struct {
	Exclude dotpath.Tree
	Include dotpath.Tree
	Expand  dotpath.Tree
}

// Sub returns the policy for the relation stored in field
func (t Trees) Sub(field string) Trees {
	return Trees{
		Exclude: t.Exclude.Sub(field),
		Include: t.Include.Sub(field),
		Expand:  t.Expand.Sub(field),
	}
}

// IsEmpty returns true if the policy selects the default field set only
func (t Trees) IsEmpty() bool {
	return t.Exclude.IsEmpty() && t.Include.IsEmpty() && t.Expand.IsEmpty()
}

// Resolver resolves the value of a relation field to the related record. If the
// relation resolves to something else than a record, that value is used as it is.
type Resolver interface {
	Resolve(ctx context.Context, rec record.Record, field record.Field, value interface{}) (interface{}, error)
}

// ResolverFunc is an adapter to use ordinary functions as Resolver
type ResolverFunc func(ctx context.Context, rec record.Record, field record.Field, value interface{}) (interface{}, error)

// Resolve implements Resolver
func (f ResolverFunc) Resolve(ctx context.Context, rec record.Record, field record.Field, value interface{}) (interface{}, error) {
	return f(ctx, rec, field, value)
}

// Hook is called after a record of a resource has been projected and before the keys are
// sorted. It may modify the fields.
type Hook func(ctx context.Context, rec record.Record, fields map[string]interface{}) error

// Projector projects records. Hooks must be registered before the first projection.
type Projector struct {
	resolver Resolver
	hooks    map[string][]Hook
}

// New returns a projector which resolves relations with resolver
func New(resolver Resolver) *Projector {
	return &Projector{
		resolver: resolver,
		hooks:    map[string][]Hook{},
	}
}

// HandleProjection registers a hook for all records of resource
func (p *Projector) HandleProjection(resource string, hook Hook) {
	p.hooks[resource] = append(p.hooks[resource], hook)
}

// Project returns the projection of rec. Any error, including the cancellation of ctx,
// aborts the whole projection.
func (p *Projector) Project(ctx context.Context, rec record.Record, trees Trees) (*Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := rec.Values()

	// exclusion: only leaves drop fields on this level
	for key := range result {
		if trees.Exclude.IsLeaf(key) {
			delete(result, key)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var slots []*slot

	// inclusion
	for _, key := range trees.Include.Keys() {
		if _, ok := result[key]; ok {
			continue
		}
		value, ok := rec.Value(key)
		if !ok {
			continue
		}
		if related, ok := value.(record.Record); ok {
			slots = append(slots, p.schedule(gctx, g, key, related, trees.Sub(key)))
			continue
		}
		result[key] = value
	}

	// expansion
	typ := rec.Type()
	for _, key := range trees.Expand.Keys() {
		field, ok := typ.Field(key)
		if !ok || !field.IsRelation() {
			continue
		}
		value, ok := result[key]
		if !ok || !truthy(value) {
			continue
		}
		s := &slot{key: key}
		slots = append(slots, s)
		sub := trees.Sub(key)
		g.Go(func() error {
			resolved := value
			if _, isRecord := value.(record.Record); !isRecord && p.resolver != nil {
				var err error
				if resolved, err = p.resolver.Resolve(gctx, rec, field, value); err != nil {
					return err
				}
			}
			if related, ok := resolved.(record.Record); ok {
				fields, err := p.Project(gctx, related, sub)
				if err != nil {
					return err
				}
				s.value = fields
				return nil
			}
			s.value = resolved
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, s := range slots {
		result[s.key] = s.value
	}
	// relations which stayed unexpanded are represented by their key
	for key, value := range result {
		if related, ok := value.(record.Record); ok {
			result[key] = related.ID()
		}
	}

	for _, hook := range p.hooks[typ.Resource] {
		if err := hook(ctx, rec, result); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newFields(result), nil
}

// ProjectAll projects a list of records with the same policy. The order of the
// records is preserved.
func (p *Projector) ProjectAll(ctx context.Context, recs []record.Record, trees Trees) ([]*Fields, error) {
	out := make([]*Fields, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			fields, err := p.Project(gctx, rec, trees)
			if err != nil {
				return err
			}
			out[i] = fields
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type slot struct {
	key   string
	value interface{}
}

func (p *Projector) schedule(ctx context.Context, g *errgroup.Group, key string, related record.Record, trees Trees) *slot {
	s := &slot{key: key}
	g.Go(func() error {
		fields, err := p.Project(ctx, related, trees)
		if err != nil {
			return err
		}
		s.value = fields
		return nil
	})
	return s
}

// truthy returns false for nil, false, zero numbers, empty strings and empty
// slices or maps
func truthy(value interface{}) bool {
	if value == nil {
		return false
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return v.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !v.IsNil()
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return !v.IsZero()
	}
	return true
}
