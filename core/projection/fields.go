// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package projection

import (
	"bytes"
	"sort"

	"github.com/goccy/go-json"
)

// Fields is the ordered result of a projection. Keys are sorted lexicographically.
type Fields struct {
	keys   []string
	values map[string]interface{}
}

func newFields(values map[string]interface{}) *Fields {
	f := &Fields{
		keys:   make([]string, 0, len(values)),
		values: values,
	}
	for key := range values {
		f.keys = append(f.keys, key)
	}
	sort.Strings(f.keys)
	return f
}

// Keys returns the field names in order
func (f *Fields) Keys() []string {
	return append([]string{}, f.keys...)
}

// Get returns the value of a field. Projected relations are of type *Fields.
func (f *Fields) Get(key string) (interface{}, bool) {
	value, ok := f.values[key]
	return value, ok
}

// Len returns the number of fields
func (f *Fields) Len() int {
	return len(f.keys)
}

// Map returns the fields as plain nested maps
func (f *Fields) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(f.keys))
	for key, value := range f.values {
		if nested, ok := value.(*Fields); ok {
			m[key] = nested.Map()
			continue
		}
		m[key] = value
	}
	return m
}

// MarshalJSON emits the fields as JSON object in key order
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.MarshalWithOption(key, json.DisableHTMLEscape())
		if err != nil {
			return nil, err
		}
		v, err := json.MarshalWithOption(f.values[key], json.DisableHTMLEscape())
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
