package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/scaffold/core/query"
	"github.com/relabs-tech/scaffold/core/record"
)

func postDescriptor(t *testing.T) *record.Descriptor {
	d := &record.Descriptor{
		Resource: "post",
		Fields: []record.Field{
			{Name: "title", Required: true},
			{Name: "author"},
		},
		Filterable: []string{"author"},
		Searchable: []string{"title"},
	}
	require.NoError(t, d.Init())
	return d
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := New(postDescriptor(t), WithSequence())

	created, err := s.Create(ctx, map[string]interface{}{"title": "Hello", "author": 100})
	require.NoError(t, err)
	assert.Equal(t, "1", created.ID())

	found, err := s.Find(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": int64(1), "title": "Hello", "author": 100}, found.Values())

	updated, err := s.Set(ctx, "1", map[string]interface{}{"title": "Changed"})
	require.NoError(t, err)
	title, _ := updated.Value("title")
	assert.Equal(t, "Changed", title)

	_, err = s.Set(ctx, "2", map[string]interface{}{"title": "x"})
	assert.True(t, errors.Is(err, record.ErrNotFound))

	require.NoError(t, s.Delete(ctx, "1"))
	_, err = s.Find(ctx, "1")
	assert.True(t, errors.Is(err, record.ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "1"), record.ErrNotFound))
}

func TestCreateValidates(t *testing.T) {
	s := New(postDescriptor(t))

	_, err := s.Create(context.Background(), map[string]interface{}{"author": 1})
	var verrs record.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "title", verrs[0].Field)

	_, err = s.Create(context.Background(), map[string]interface{}{"id": "mine", "title": "x"})
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs[0].Permission)
}

func TestCreateSkipsSeededIDs(t *testing.T) {
	ctx := context.Background()
	s := New(postDescriptor(t), WithSequence())
	s.Put(map[string]interface{}{"id": 1, "title": "seeded"})
	s.Put(map[string]interface{}{"id": int64(2), "title": "seeded too"})

	created, err := s.Create(ctx, map[string]interface{}{"title": "new"})
	require.NoError(t, err)
	assert.Equal(t, "3", created.ID())

	seeded, err := s.Find(ctx, "1")
	require.NoError(t, err)
	title, _ := seeded.Value("title")
	assert.Equal(t, "seeded", title)
}

func TestCreateReportsTakenID(t *testing.T) {
	s := New(postDescriptor(t))
	s.newID = func() interface{} { return "fixed" }
	s.Put(map[string]interface{}{"id": "fixed", "title": "seeded"})

	_, err := s.Create(context.Background(), map[string]interface{}{"title": "new"})
	var verrs record.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "id", verrs[0].Field)
	assert.False(t, verrs[0].Permission)
}

func TestRandomIDs(t *testing.T) {
	s := New(postDescriptor(t))
	a, err := s.Create(context.Background(), map[string]interface{}{"title": "a"})
	require.NoError(t, err)
	b, err := s.Create(context.Background(), map[string]interface{}{"title": "b"})
	require.NoError(t, err)
	assert.Len(t, a.ID(), 36)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestQuery(t *testing.T) {
	s := New(postDescriptor(t))
	for i, title := range []string{"Go generics", "Rust", "go modules", "Zig"} {
		s.Put(map[string]interface{}{"id": i + 1, "title": title, "author": 100 + i%2})
	}

	records, total, err := s.Query(context.Background(), query.Build(query.Options{
		Search:       "go",
		SearchFields: []string{"title"},
		Sort:         []query.Sort{{Field: "id", Desc: true}},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)
	assert.Equal(t, "3", records[0].ID())
	assert.Equal(t, "1", records[1].ID())

	one := 1
	records, total, err = s.Query(context.Background(), query.Build(query.Options{
		Filter: query.Filter{"author": "101"},
		Limit:  &one,
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].ID())
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(postDescriptor(t))
	_, _, err := s.Query(ctx, query.Build(query.Options{}))
	assert.True(t, errors.Is(err, context.Canceled))
}
