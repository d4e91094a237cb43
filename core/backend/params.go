// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/relabs-tech/scaffold/core/apierror"
	"github.com/relabs-tech/scaffold/core/dotpath"
	"github.com/relabs-tech/scaffold/core/pagination"
	"github.com/relabs-tech/scaffold/core/pointers"
	"github.com/relabs-tech/scaffold/core/projection"
	"github.com/relabs-tech/scaffold/core/query"
	"github.com/relabs-tech/scaffold/core/record"
)

// filterPrefix is the prefix of filter parameters, e.g. filter.author=100
const filterPrefix = "filter."

// Params are the query parameters of a request. Unknown parameters are ignored.
type Params struct {
	// Page is the requested page, 0 if not specified
	Page int
	// PerPage is the requested page size, also known as limit
	PerPage *int
	// Start is a raw offset. It takes precedence over Page.
	Start  *int
	Sort   string
	Search string
	Filter map[string]interface{}
	Trees  projection.Trees
	Pretty *bool
}

// ParseParams parses the query parameters of a request
func ParseParams(values url.Values) (Params, error) {
	var (
		p   Params
		err error
	)
	if p.Page, err = intParam(values, "page", 0); err != nil {
		return p, err
	}
	// per_page wins over its legacy alias limit
	for _, key := range []string{"limit", "per_page"} {
		if _, ok := values[key]; !ok {
			continue
		}
		perPage, err := intParam(values, key, 0)
		if err != nil {
			return p, err
		}
		p.PerPage = pointers.To(perPage)
	}
	if _, ok := values["start"]; ok {
		start, err := intParam(values, "start", 0)
		if err != nil {
			return p, err
		}
		p.Start = pointers.To(start)
	}
	if _, ok := values["pretty"]; ok {
		pretty, err := strconv.ParseBool(values.Get("pretty"))
		if err != nil {
			return p, apierror.BadRequest("Invalid boolean value for 'pretty'", "pretty")
		}
		p.Pretty = pointers.To(pretty)
	}

	p.Sort = strings.Join(values["sort"], ",")
	p.Search = strings.TrimSpace(values.Get("search"))

	p.Filter = map[string]interface{}{}
	for key, vs := range values {
		if !strings.HasPrefix(key, filterPrefix) {
			continue
		}
		name := strings.TrimPrefix(key, filterPrefix)
		if len(vs) == 1 {
			p.Filter[name] = vs[0]
			continue
		}
		list := make([]interface{}, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		p.Filter[name] = list
	}

	p.Trees = projection.Trees{
		Exclude: dotpath.FromValues(values["exclude"]...),
		Include: dotpath.FromValues(values["include"]...),
		Expand:  dotpath.FromValues(values["expand"]...),
	}
	return p, nil
}

func intParam(values url.Values, key string, fallback int) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.BadRequest(fmt.Sprintf("Invalid integer value for '%s'", key), key).Wrap(err)
	}
	return i, nil
}

// ListQuery validates filter and sort against the descriptor and builds the list query.
// Without a sort parameter the default sort of the resource applies. Hidden fields
// cannot be sorted by.
func (p Params) ListQuery(d *record.Descriptor) (query.ListQuery, error) {
	filter, err := query.ValidateFilter(p.Filter, d.Filterable)
	if err != nil {
		return query.ListQuery{}, err
	}
	// requesters sort by visible fields only, the configured default may use any field
	order, allowed := p.Sort, d.VisibleFieldNames()
	if strings.TrimSpace(order) == "" {
		order, allowed = strings.Join(d.DefaultSort, ","), d.FieldNames()
	}
	sort, err := query.ParseSort(order, allowed)
	if err != nil {
		return query.ListQuery{}, err
	}
	return query.Build(query.Options{
		Filter:       filter,
		Search:       p.Search,
		SearchFields: d.Searchable,
		Sort:         sort,
		Offset:       p.Start,
		Limit:        p.PerPage,
		Page:         p.Page,
	}), nil
}

// PaginationState returns the pagination state of a list query. With a raw start
// offset the page is derived from it. Links only carry pages, so a start offset
// that is not a multiple of the page size does not round-trip through them.
func (p Params) PaginationState(q query.ListQuery, totalCount int) pagination.State {
	page := p.Page
	if p.Start != nil && q.Limit > 0 {
		page = q.Offset/q.Limit + 1
	}
	if page < 1 {
		page = 1
	}
	return pagination.State{Page: page, PerPage: q.Limit, TotalCount: totalCount}
}
