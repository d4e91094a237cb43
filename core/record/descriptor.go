// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package record

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/relabs-tech/scaffold/core"
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ResolveFunc resolves a relation field to its target. The result can be another
// record or any other value, which will then be used as it is.
type ResolveFunc func(ctx context.Context, rec Record, value interface{}) (interface{}, error)

// supported field types
const (
	TypeString    = "string"
	TypeInteger   = "integer"
	TypeNumber    = "number"
	TypeBoolean   = "boolean"
	TypeTimestamp = "timestamp"
	TypeJSON      = "json"
)

var validTypes = map[string]bool{
	TypeString: true, TypeInteger: true, TypeNumber: true,
	TypeBoolean: true, TypeTimestamp: true, TypeJSON: true,
}

// Field describes one field of a resource
type Field struct {
	Name string `json:"name"`
	// Type is the storage type, one of the Type constants. Default is TypeString.
	Type string `json:"type"`
	// Hidden fields are not part of the default field set, they must be included explicitly
	Hidden bool `json:"hidden"`
	// ReadOnly fields cannot be written by create or edit requests
	ReadOnly bool `json:"read_only"`
	// Required fields must be present in create requests
	Required bool `json:"required"`
	// Relation is the target resource if this field is a foreign key
	Relation string `json:"relation"`
	// Resolve overrides the lookup of the relation target
	Resolve ResolveFunc `json:"-"`
}

// IsRelation returns true if the field references another record
func (f Field) IsRelation() bool {
	return f.Relation != "" || f.Resolve != nil
}

// Descriptor is the schema of a resource. It replaces static per-type metadata: it is
// created once at startup and passed to everybody who needs to know about the resource.
type Descriptor struct {
	Resource    string   `json:"resource"`
	Table       string   `json:"table"`
	PrimaryKey  string   `json:"primary_key"`
	Fields      []Field  `json:"fields"`
	Filterable  []string `json:"filterable_properties"`
	Searchable  []string `json:"searchable_properties"`
	DefaultSort []string `json:"default_sort"`

	index map[string]int
}

// Init applies defaults and validates the descriptor. It must be called before
// the descriptor is used.
func (d *Descriptor) Init() error {
	if !validName.MatchString(d.Resource) {
		return fmt.Errorf("invalid resource name '%s'", d.Resource)
	}
	if d.Table == "" {
		d.Table = core.Plural(d.Resource)
	}
	if !validName.MatchString(d.Table) {
		return fmt.Errorf("resource %s: invalid table name '%s'", d.Resource, d.Table)
	}
	if d.PrimaryKey == "" {
		d.PrimaryKey = "id"
	}

	d.index = make(map[string]int, len(d.Fields)+1)
	for i, f := range d.Fields {
		if !validName.MatchString(f.Name) {
			return fmt.Errorf("resource %s: invalid field name '%s'", d.Resource, f.Name)
		}
		if _, ok := d.index[f.Name]; ok {
			return fmt.Errorf("resource %s: duplicate field '%s'", d.Resource, f.Name)
		}
		if f.Type == "" {
			d.Fields[i].Type = TypeString
		} else if !validTypes[f.Type] {
			return fmt.Errorf("resource %s: field '%s' has invalid type '%s'", d.Resource, f.Name, f.Type)
		}
		d.index[f.Name] = i
	}
	if i, ok := d.index[d.PrimaryKey]; ok {
		d.Fields[i].ReadOnly = true
	} else {
		d.Fields = append([]Field{{Name: d.PrimaryKey, Type: TypeString, ReadOnly: true}}, d.Fields...)
		for name := range d.index {
			d.index[name]++
		}
		d.index[d.PrimaryKey] = 0
	}

	for _, name := range d.Filterable {
		if _, ok := d.index[name]; !ok {
			return fmt.Errorf("resource %s: filterable property '%s' is not a field", d.Resource, name)
		}
	}
	for _, name := range d.Searchable {
		i, ok := d.index[name]
		if !ok {
			return fmt.Errorf("resource %s: searchable property '%s' is not a field", d.Resource, name)
		}
		if d.Fields[i].Type != TypeString {
			return fmt.Errorf("resource %s: searchable property '%s' is not a string", d.Resource, name)
		}
	}
	if len(d.DefaultSort) == 0 {
		d.DefaultSort = []string{d.PrimaryKey}
	}
	return nil
}

// Field returns the declared field with the given name
func (d *Descriptor) Field(name string) (Field, bool) {
	i, ok := d.index[name]
	if !ok {
		return Field{}, false
	}
	return d.Fields[i], true
}

// FieldNames returns the names of all declared fields in declaration order
func (d *Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// VisibleFieldNames returns the names of all fields which are not hidden, in declaration order
func (d *Descriptor) VisibleFieldNames() []string {
	var names []string
	for _, f := range d.Fields {
		if !f.Hidden {
			names = append(names, f.Name)
		}
	}
	return names
}

// IsHidden returns true if the field is hidden by default
func (d *Descriptor) IsHidden(name string) bool {
	f, ok := d.Field(name)
	return ok && f.Hidden
}

// IsRelation returns true if the field is a declared relation
func (d *Descriptor) IsRelation(name string) bool {
	f, ok := d.Field(name)
	return ok && f.IsRelation()
}

// Validate checks fields for a create or edit request. Unknown fields and missing
// required fields are reported as plain validation errors, writes to read-only fields
// as permission errors.
func (d *Descriptor) Validate(fields map[string]interface{}, creating bool) error {
	var errs ValidationErrors
	for name := range fields {
		f, ok := d.Field(name)
		if !ok {
			errs = append(errs, ValidationError{Field: name, Message: "unknown field"})
			continue
		}
		if f.ReadOnly {
			errs = append(errs, ValidationError{Field: name, Message: "field is read-only", Permission: true})
		}
	}
	if creating {
		for _, f := range d.Fields {
			if _, ok := fields[f.Name]; f.Required && !ok {
				errs = append(errs, ValidationError{Field: f.Name, Message: "field is required"})
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	errs.sortByField()
	return errs
}

// Sorted returns the names of the passed fields in lexicographical order
func Sorted(fields map[string]interface{}) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
