// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package query

import (
	"sort"

	sq "github.com/Masterminds/squirrel"
)

// FullCountColumn is the name of the window column which carries the total number of matches
const FullCountColumn = "full_count"

// Where returns the predicate of the query for the given table: all filter equalities
// AND-ed together, plus an OR of case-insensitive substring matches over the search fields.
// Column references are qualified with table. Values are always bound as parameters.
func (q ListQuery) Where(table string) sq.And {
	where := sq.And{}
	if len(q.Filter) > 0 {
		eq := sq.Eq{}
		for key, value := range q.Filter {
			eq[column(table, key)] = value
		}
		where = append(where, eq)
	}
	if q.HasSearch() {
		pattern := q.SearchPattern()
		fields := append([]string{}, q.SearchFields...)
		sort.Strings(fields)
		or := sq.Or{}
		for _, field := range fields {
			or = append(or, sq.ILike{column(table, field): pattern})
		}
		where = append(where, or)
	}
	return where
}

// ToSelect renders the query as one SELECT statement. Next to the requested columns,
// every row carries the total number of matching rows in FullCountColumn.
func (q ListQuery) ToSelect(table string, columns ...string) sq.SelectBuilder {
	qualified := make([]string, len(columns))
	for i, c := range columns {
		qualified[i] = column(table, c)
	}
	sb := sq.Select(qualified...).
		Column("count(*) OVER() AS " + FullCountColumn).
		From(table).
		PlaceholderFormat(sq.Dollar)
	sb = q.joins(sb)
	if where := q.Where(table); len(where) > 0 {
		sb = sb.Where(where)
	}
	for _, s := range q.Sort {
		if s.Desc {
			sb = sb.OrderBy(column(table, s.Field) + " DESC")
		} else {
			sb = sb.OrderBy(column(table, s.Field) + " ASC")
		}
	}
	return sb.Limit(uint64(q.Limit)).Offset(uint64(q.Offset))
}

// ToCount renders a statement which counts all matching rows. Stores use it when the
// requested page is empty and the window count is therefore unavailable.
func (q ListQuery) ToCount(table string) sq.SelectBuilder {
	sb := sq.Select("count(*)").From(table).PlaceholderFormat(sq.Dollar)
	sb = q.joins(sb)
	if where := q.Where(table); len(where) > 0 {
		sb = sb.Where(where)
	}
	return sb
}

func (q ListQuery) joins(sb sq.SelectBuilder) sq.SelectBuilder {
	for _, j := range q.Joins {
		sb = sb.LeftJoin(j.Table+" ON "+j.On, j.Args...)
	}
	return sb
}

func column(table, field string) string {
	return table + "." + field
}
