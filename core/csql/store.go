// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package csql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/relabs-tech/scaffold/core/logger"
	"github.com/relabs-tech/scaffold/core/query"
	"github.com/relabs-tech/scaffold/core/record"
)

// postgres error codes translated into validation errors
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeInvalidText         = "22P02"
)

var columnTypes = map[string]string{
	record.TypeString:    "varchar",
	record.TypeInteger:   "bigint",
	record.TypeNumber:    "double precision",
	record.TypeBoolean:   "boolean",
	record.TypeTimestamp: "timestamptz",
	record.TypeJSON:      "jsonb",
}

// Store is a record store backed by one Postgres table. Every field of the
// descriptor is a column.
type Store struct {
	db      *DB
	typ     *record.Descriptor
	table   string
	columns []string
}

// NewStore returns a store for the resource. The table is db.Schema + "." + d.Table.
func NewStore(db *DB, d *record.Descriptor) *Store {
	return &Store{
		db:      db,
		typ:     d,
		table:   db.Schema + "." + d.Table,
		columns: d.FieldNames(),
	}
}

// CreateTable creates the table of the store if it does not exist yet. String primary keys
// default to random uuids, integer primary keys to a sequence.
func (s *Store) CreateTable(ctx context.Context) error {
	var defs []string
	for _, f := range s.typ.Fields {
		if f.Name == s.typ.PrimaryKey {
			if f.Type == record.TypeInteger {
				defs = append(defs, f.Name+" bigserial PRIMARY KEY")
			} else {
				defs = append(defs, f.Name+" varchar PRIMARY KEY DEFAULT uuid_generate_v4()::varchar")
			}
			continue
		}
		def := f.Name + " " + columnTypes[f.Type]
		if f.Required {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	statement := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", s.table, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("cannot create table %s: %w", s.table, err)
	}
	for _, name := range s.typ.Filterable {
		index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s);", s.typ.Table, name, s.table, name)
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("cannot create index on %s.%s: %w", s.table, name, err)
		}
	}
	return nil
}

// Find implements record.Store
func (s *Store) Find(ctx context.Context, id string) (record.Record, error) {
	statement, args, err := sq.Select(s.qualifiedColumns()...).
		From(s.table).
		Where(sq.Eq{s.column(s.typ.PrimaryKey): id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := s.scanOne(s.db.QueryRowContext(ctx, statement, args...))
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return nil, record.ErrNotFound
	}
	return rec, err
}

// Create implements record.Store
func (s *Store) Create(ctx context.Context, fields map[string]interface{}) (record.Record, error) {
	if err := s.typ.Validate(fields, true); err != nil {
		return nil, err
	}
	values, err := s.columnValues(fields)
	if err != nil {
		return nil, err
	}
	builder := sq.Insert(s.table).SetMap(values)
	if len(values) == 0 {
		builder = sq.Insert(s.table).Columns(s.typ.PrimaryKey).Values(sq.Expr("DEFAULT"))
	}
	statement, args, err := builder.
		Suffix("RETURNING " + strings.Join(s.columns, ", ")).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := s.scanOne(s.db.QueryRowContext(ctx, statement, args...))
	if err != nil {
		return nil, s.translate(ctx, err)
	}
	return rec, nil
}

// Set implements record.Store
func (s *Store) Set(ctx context.Context, id string, fields map[string]interface{}) (record.Record, error) {
	if err := s.typ.Validate(fields, false); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return s.Find(ctx, id)
	}
	values, err := s.columnValues(fields)
	if err != nil {
		return nil, err
	}
	statement, args, err := sq.Update(s.table).
		SetMap(values).
		Where(sq.Eq{s.typ.PrimaryKey: id}).
		Suffix("RETURNING " + strings.Join(s.columns, ", ")).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := s.scanOne(s.db.QueryRowContext(ctx, statement, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if isInvalidText(err) {
		// either the id or one of the values does not fit its column
		if _, findErr := s.Find(ctx, id); errors.Is(findErr, record.ErrNotFound) {
			return nil, record.ErrNotFound
		}
	}
	if err != nil {
		return nil, s.translate(ctx, err)
	}
	return rec, nil
}

// Delete implements record.Store
func (s *Store) Delete(ctx context.Context, id string) error {
	statement, args, err := sq.Delete(s.table).
		Where(sq.Eq{s.typ.PrimaryKey: id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, statement, args...)
	if isInvalidText(err) {
		return record.ErrNotFound
	}
	if err != nil {
		return s.translate(ctx, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return record.ErrNotFound
	}
	return nil
}

// Query implements record.Store. The total count is taken from the window column of the
// page. If the page is empty, it is counted separately.
func (s *Store) Query(ctx context.Context, q query.ListQuery) ([]record.Record, int, error) {
	statement, args, err := q.ToSelect(s.table, s.columns...).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, 0, s.translate(ctx, err)
	}
	defer rows.Close()

	var (
		records    []record.Record
		totalCount int
	)
	for rows.Next() {
		values, dest := s.scanTargets(&totalCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, err
		}
		records = append(records, s.object(values))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(records) > 0 || q.Offset == 0 && q.Limit > 0 {
		return records, totalCount, nil
	}

	statement, args, err = q.ToCount(s.table).ToSql()
	if err != nil {
		return nil, 0, err
	}
	if err := s.db.QueryRowContext(ctx, statement, args...).Scan(&totalCount); err != nil {
		return nil, 0, s.translate(ctx, err)
	}
	return records, totalCount, nil
}

func (s *Store) column(name string) string {
	return s.table + "." + name
}

func (s *Store) qualifiedColumns() []string {
	columns := make([]string, len(s.columns))
	for i, c := range s.columns {
		columns[i] = s.column(c)
	}
	return columns
}

// columnValues converts request values into column values. JSON fields are marshalled.
func (s *Store) columnValues(fields map[string]interface{}) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		f, _ := s.typ.Field(name)
		if f.Type == record.TypeJSON && value != nil {
			data, err := json.Marshal(value)
			if err != nil {
				return nil, record.ValidationErrors{{Field: name, Message: "cannot encode value"}}
			}
			value = string(data)
		}
		values[name] = value
	}
	return values, nil
}

func (s *Store) scanTargets(extra ...interface{}) ([]interface{}, []interface{}) {
	values := make([]interface{}, len(s.columns))
	dest := make([]interface{}, 0, len(s.columns)+len(extra))
	for i := range values {
		dest = append(dest, &values[i])
	}
	return values, append(dest, extra...)
}

func (s *Store) scanOne(row *sql.Row) (record.Record, error) {
	values, dest := s.scanTargets()
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return s.object(values), nil
}

func (s *Store) object(values []interface{}) *record.Object {
	m := make(map[string]interface{}, len(values))
	for i, value := range values {
		name := s.columns[i]
		if b, ok := value.([]byte); ok {
			if f, _ := s.typ.Field(name); f.Type == record.TypeJSON {
				value = json.RawMessage(b)
			} else {
				value = string(b)
			}
		}
		m[name] = value
	}
	return record.NewObject(s.typ, m)
}

// translate maps postgres errors to validation errors. Everything else is passed on.
func (s *Store) translate(ctx context.Context, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	logger.FromContext(ctx).WithError(err).Debugf("postgres error %s on %s", pqErr.Code, s.table)
	switch pqErr.Code {
	case codeUniqueViolation:
		return record.ValidationErrors{{Field: pqErr.Column, Message: "value already exists"}}
	case codeForeignKeyViolation:
		return record.ValidationErrors{{Field: pqErr.Column, Message: "referenced record does not exist"}}
	case codeNotNullViolation:
		return record.ValidationErrors{{Field: pqErr.Column, Message: "field is required"}}
	case codeInvalidText:
		return record.ValidationErrors{{Message: "invalid value: " + pqErr.Message}}
	}
	return err
}

func isInvalidText(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeInvalidText
}
