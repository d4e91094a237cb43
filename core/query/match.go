// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package query

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Valuer gives access to the fields of an item
type Valuer interface {
	Value(name string) (interface{}, bool)
}

// Matches returns true if the item satisfies filter and search of the query. Joins are
// not evaluated in memory.
func (q ListQuery) Matches(item Valuer) bool {
	for key, want := range q.Filter {
		got, _ := item.Value(key)
		if !matchValue(got, want) {
			return false
		}
	}
	if !q.HasSearch() {
		return true
	}
	term := strings.ToLower(q.Search)
	for _, field := range q.SearchFields {
		value, ok := item.Value(field)
		if !ok || value == nil {
			continue
		}
		if strings.Contains(strings.ToLower(fmt.Sprint(value)), term) {
			return true
		}
	}
	return false
}

// Apply executes the query in memory. It returns the requested page and the total
// number of matching items.
func Apply[T Valuer](q ListQuery, items []T) ([]T, int) {
	var matched []T
	for _, item := range items {
		if q.Matches(item) {
			matched = append(matched, item)
		}
	}
	if len(q.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, s := range q.Sort {
				a, _ := matched[i].Value(s.Field)
				b, _ := matched[j].Value(s.Field)
				c := Compare(a, b)
				if c == 0 {
					continue
				}
				if s.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	total := len(matched)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// matchValue implements equality with SQL flavour: nil matches absent or nil values,
// a slice matches any of its elements.
func matchValue(got, want interface{}) bool {
	if want == nil {
		return got == nil
	}
	if got == nil {
		return false
	}
	rv := reflect.ValueOf(want)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			if matchValue(got, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	return Compare(got, want) == 0
}

// Compare orders two field values. Numbers compare numerically, also when one of them is
// a numeric string, times chronologically, everything else by its string representation.
// nil sorts first.
func Compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
