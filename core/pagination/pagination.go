// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package pagination computes page counts and navigation links for list responses

A list response carries the total number of matching records in X-Total-Count and a Link header
with the navigation links in the fixed order self, first, previous, next, last:

	Link: <https://api/posts?page=2&per_page=50>; rel="self", <https://api/posts?page=1&per_page=50>; rel="first", ...

previous and next are omitted when they would point outside of [1,pageCount]. In addition the
Pagination-Limit, Pagination-Total-Count, Pagination-Page-Count and Pagination-Current-Page headers
are set.
*/
package pagination

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPerPage is the page size used when the request does not specify one.
// Links omit per_page when it equals DefaultPerPage.
const DefaultPerPage = 100

// State is the pagination state of one list response
type State struct {
	Page       int
	PerPage    int
	TotalCount int
}

// PageCount returns max(1, ceil(TotalCount/PerPage)). A page size of 0 yields one page.
func (s State) PageCount() int {
	if s.PerPage <= 0 || s.TotalCount <= 0 {
		return 1
	}
	return (s.TotalCount + s.PerPage - 1) / s.PerPage
}

// Link is one navigation link
type Link struct {
	Rel string
	URL string
}

// String returns the link in Link header notation
func (l Link) String() string {
	return fmt.Sprintf(`<%s>; rel="%s"`, l.URL, l.Rel)
}

// Result is the outcome of Paginate
type Result struct {
	State
	PageCount int
	Links     []Link
}

// Paginate builds the navigation links for the state. Every link reproduces the
// query of base with page forced to the target page. The legacy parameters limit
// and start are dropped from links.
func Paginate(s State, base *url.URL) Result {
	if s.Page < 1 {
		s.Page = 1
	}
	r := Result{State: s, PageCount: s.PageCount()}
	link := func(rel string, page int) {
		r.Links = append(r.Links, Link{Rel: rel, URL: pageURL(base, s.PerPage, page)})
	}
	link("self", s.Page)
	link("first", 1)
	if s.Page > 1 {
		link("previous", s.Page-1)
	}
	if s.Page < r.PageCount {
		link("next", s.Page+1)
	}
	link("last", r.PageCount)
	return r
}

func pageURL(base *url.URL, perPage, page int) string {
	u := *base
	q := base.Query()
	q.Del("limit")
	q.Del("start")
	if perPage == DefaultPerPage {
		q.Del("per_page")
	} else {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Link returns the link with the given relation
func (r Result) Link(rel string) (Link, bool) {
	for _, l := range r.Links {
		if l.Rel == rel {
			return l, true
		}
	}
	return Link{}, false
}

// LinkHeader returns all links comma-joined in header notation
func (r Result) LinkHeader() string {
	parts := make([]string, len(r.Links))
	for i, l := range r.Links {
		parts[i] = l.String()
	}
	return strings.Join(parts, ", ")
}

// Write sets the pagination headers
func (r Result) Write(h http.Header) {
	h.Set("X-Total-Count", strconv.Itoa(r.TotalCount))
	h.Set("Link", r.LinkHeader())
	h.Set("Pagination-Limit", strconv.Itoa(r.PerPage))
	h.Set("Pagination-Total-Count", strconv.Itoa(r.TotalCount))
	h.Set("Pagination-Page-Count", strconv.Itoa(r.PageCount))
	h.Set("Pagination-Current-Page", strconv.Itoa(r.Page))
}
