// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package registry maps resource identifiers to their descriptor, store and permits

The registry is built once at startup, either programmatically with Register or from a JSON
configuration with Load:

	{
	  "resources": [
	    {
	      "resource": "post",
	      "fields": [
	        {"name": "title", "required": true},
	        {"name": "author", "relation": "author"}
	      ],
	      "filterable_properties": ["author"],
	      "searchable_properties": ["title"],
	      "permits": [{"role": "everybody", "operations": ["read", "list"]}],
	      "schema_id": "https://example.com/schemas/post.json"
	    }
	  ]
	}

The registry also resolves relation fields to the related records, it implements projection.Resolver.
*/
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/scaffold/core/access"
	"github.com/relabs-tech/scaffold/core/record"
)

// Configuration is a complete resource configuration
type Configuration struct {
	Resources []ResourceConfiguration `json:"resources"`
}

// ResourceConfiguration describes one resource
type ResourceConfiguration struct {
	record.Descriptor
	Permits     []access.Permit `json:"permits"`
	SchemaID    string          `json:"schema_id"`
	Description string          `json:"description"`
}

// ParseConfiguration parses a JSON configuration
func ParseConfiguration(data []byte) (Configuration, error) {
	var config Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("invalid resource configuration: %w", err)
	}
	return config, nil
}

// Resource is a registered resource
type Resource struct {
	Descriptor  *record.Descriptor
	Store       record.Store
	Permits     access.Permits
	SchemaID    string
	Description string
}

// StoreFactory creates the store for a resource
type StoreFactory func(d *record.Descriptor) (record.Store, error)

// Registry is the resource registry. It must be completely set up before it is used
// concurrently.
type Registry struct {
	resources map[string]*Resource
	order     []string
}

// New returns an empty registry
func New() *Registry {
	return &Registry{resources: map[string]*Resource{}}
}

// Register adds a resource. The descriptor gets initialized.
func (r *Registry) Register(d *record.Descriptor, store record.Store, permits access.Permits) (*Resource, error) {
	if err := d.Init(); err != nil {
		return nil, err
	}
	if _, ok := r.resources[d.Resource]; ok {
		return nil, fmt.Errorf("resource %s already registered", d.Resource)
	}
	if store == nil {
		return nil, fmt.Errorf("resource %s has no store", d.Resource)
	}
	res := &Resource{Descriptor: d, Store: store, Permits: permits}
	r.resources[d.Resource] = res
	r.order = append(r.order, d.Resource)
	return res, nil
}

// Load registers all resources of the configuration, creating their stores with factory.
// Relations must point to configured resources.
func (r *Registry) Load(config Configuration, factory StoreFactory) error {
	for i := range config.Resources {
		rc := config.Resources[i]
		d := rc.Descriptor
		if err := d.Init(); err != nil {
			return err
		}
		store, err := factory(&d)
		if err != nil {
			return fmt.Errorf("cannot create store for %s: %w", d.Resource, err)
		}
		res, err := r.Register(&d, store, rc.Permits)
		if err != nil {
			return err
		}
		res.SchemaID = rc.SchemaID
		res.Description = rc.Description
	}
	return r.Validate()
}

// Validate checks that all relations point to registered resources
func (r *Registry) Validate() error {
	for _, name := range r.order {
		d := r.resources[name].Descriptor
		for _, f := range d.Fields {
			if f.Relation == "" {
				continue
			}
			if _, ok := r.resources[f.Relation]; !ok {
				return fmt.Errorf("resource %s: relation %s points to unknown resource %s", d.Resource, f.Name, f.Relation)
			}
		}
	}
	return nil
}

// Lookup returns the resource with the given identifier
func (r *Registry) Lookup(resource string) (*Resource, bool) {
	res, ok := r.resources[resource]
	return res, ok
}

// Resources returns all resources in registration order
func (r *Registry) Resources() []*Resource {
	resources := make([]*Resource, len(r.order))
	for i, name := range r.order {
		resources[i] = r.resources[name]
	}
	return resources
}

// Resolve implements projection.Resolver. Fields with a resolve function use it, foreign keys
// are looked up in the store of the related resource. A dangling foreign key resolves to itself.
func (r *Registry) Resolve(ctx context.Context, rec record.Record, field record.Field, value interface{}) (interface{}, error) {
	if field.Resolve != nil {
		return field.Resolve(ctx, rec, value)
	}
	target, ok := r.resources[field.Relation]
	if !ok {
		return value, nil
	}
	related, err := target.Store.Find(ctx, fmt.Sprint(value))
	if errors.Is(err, record.ErrNotFound) {
		return value, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot resolve %s.%s: %w", rec.Type().Resource, field.Name, err)
	}
	return related, nil
}
