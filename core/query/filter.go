// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package query translates untrusted list parameters into safe list queries

Filter keys end up as column references in generated predicates. ValidateFilter is therefore strict:
every key must be a named (non-numeric) identifier made of letters, digits and underscores, and it
must be on the resource's allow-list. Anything else is rejected, never silently dropped.

Build composes a validated filter, an optional search term, sort order and offset/limit into a
ListQuery, which a store executes exactly once, either as SQL (ToSelect) or in memory (Apply).
*/
package query

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/relabs-tech/scaffold/core/apierror"
)

// ErrInvalidFilterField is the cause of all errors returned by ValidateFilter
var ErrInvalidFilterField = errors.New("invalid filter field")

var (
	keyPattern     = regexp.MustCompile(`^[A-Za-z0-9_]*$`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)
)

// Filter is a validated mapping from field name to the value the field must equal.
// The empty filter matches everything.
type Filter map[string]interface{}

// Keys returns the filter fields in lexicographical order
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// IsSafeKey returns true if key can be used as a column reference: it is
// not purely numeric and consists of letters, digits and underscores only.
func IsSafeKey(key string) bool {
	return !numericPattern.MatchString(key) && keyPattern.MatchString(key)
}

// ValidateFilter validates the raw filter against the allowed fields. Keys are checked in
// lexicographical order, the error names the first offending key. Values are passed through.
func ValidateFilter(raw map[string]interface{}, allowed []string) (Filter, error) {
	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	filter := make(Filter, len(raw))
	for _, key := range keys {
		if !IsSafeKey(key) || !allow[key] {
			return nil, apierror.BadRequest(fmt.Sprintf("Invalid filter field '%s'", key), key).
				Wrap(ErrInvalidFilterField)
		}
		filter[key] = raw[key]
	}
	return filter, nil
}
