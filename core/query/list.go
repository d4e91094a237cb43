// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package query

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/scaffold/core/apierror"
	"github.com/relabs-tech/scaffold/core/pointers"
)

// limits for a single page
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Sort is one sort criterion
type Sort struct {
	Field string
	Desc  bool
}

// String returns the criterion in request notation, e.g. "-created_at"
func (s Sort) String() string {
	if s.Desc {
		return "-" + s.Field
	}
	return s.Field
}

// Join is a trusted join condition. Joins are supplied by the persistence layer only,
// they are never derived from request parameters.
type Join struct {
	Table string
	On    string
	Args  []interface{}
}

// ListQuery is a complete, validated list request
type ListQuery struct {
	Filter       Filter
	Search       string
	SearchFields []string
	Sort         []Sort
	Offset       int
	Limit        int
	Joins        []Join
}

// Options are the inputs of Build
type Options struct {
	Filter       Filter
	Search       string
	SearchFields []string
	Sort         []Sort
	// Offset is a raw offset. If nil, the offset is derived from Page.
	Offset *int
	// Limit is the requested page size. If nil, DefaultLimit is used.
	Limit *int
	// Page is 1-based and only used if Offset is nil
	Page  int
	Joins []Join
}

// Build creates a list query from the options. The limit is clamped to [0,MaxLimit],
// the offset to non-negative values.
func Build(o Options) ListQuery {
	limit := ClampLimit(pointers.ValueOr(o.Limit, DefaultLimit))
	offset := pointers.Value(o.Offset)
	if o.Offset == nil && o.Page > 1 {
		offset = (o.Page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}

	q := ListQuery{
		Filter: Filter{},
		Search: o.Search,
		Offset: offset,
		Limit:  limit,
	}
	for key, value := range o.Filter {
		q.Filter[key] = value
	}
	q.SearchFields = append(q.SearchFields, o.SearchFields...)
	q.Sort = append(q.Sort, o.Sort...)
	q.Joins = append(q.Joins, o.Joins...)
	return q
}

// ClampLimit clamps a requested limit to [0,MaxLimit]
func ClampLimit(requested int) int {
	if requested < 0 {
		return 0
	}
	if requested > MaxLimit {
		return MaxLimit
	}
	return requested
}

// HasSearch returns true if the query carries a search clause
func (q ListQuery) HasSearch() bool {
	return q.Search != "" && len(q.SearchFields) > 0
}

// SearchPattern returns the escaped substring pattern for the search term
func (q ListQuery) SearchPattern() string {
	return "%" + EscapeLike(q.Search) + "%"
}

// EscapeLike escapes the wildcard characters of LIKE patterns. Backslash is
// the escape character.
func EscapeLike(term string) string {
	return likeEscaper.Replace(term)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ParseSort parses a comma separated sort specification like "name,-created_at".
// A leading '-' sorts descending, a leading '+' ascending. Every field must be safe and allowed.
func ParseSort(order string, allowed []string) ([]Sort, error) {
	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}
	var sorts []Sort
	for _, part := range strings.Split(order, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s := Sort{Field: part}
		switch part[0] {
		case '-':
			s = Sort{Field: part[1:], Desc: true}
		case '+':
			s = Sort{Field: part[1:]}
		}
		if s.Field == "" || !IsSafeKey(s.Field) || !allow[s.Field] {
			return nil, apierror.BadRequest(fmt.Sprintf("Invalid sort field '%s'", s.Field), "sort")
		}
		sorts = append(sorts, s)
	}
	return sorts, nil
}
