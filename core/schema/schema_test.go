package schema_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/scaffold/core/schema"
)

const (
	ref1 = `{ "type" : "string" ,
		      "$id" : "http://some_host.com/string.json"}`
	ref2 = `{ "$id" : "http://some_host.com/maxlength.json",
	 		  "maxLength" : 5 }`

	topLevel1 = `
	{ "$id" : "http://some_host.com/top1.json",
	  "allOf" : [
		{ "$ref" : "http://some_host.com/string.json" },
		{ "$ref" : "http://some_host.com/maxlength.json" }
		]
	}`
	topLevel2 = `
	{ "$id" : "http://some_host.com/top2.json",
	  "allOf" : [
 		{ "$ref" : "http://some_host.com/string.json" },
 		{ "type": "string", "minlength": 3 }
	  ]
	}`

	postSchema = `{
		"$id": "https://scaffold.example.com/schemas/post.json",
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": { "type": "string", "minLength": 1 },
			"author": { "type": "integer" }
		}
	}`
)

func TestValidateString(t *testing.T) {
	v, err := schema.NewValidator([]string{topLevel1, topLevel2}, []string{ref1, ref2})
	require.NoError(t, err)

	schemaID1 := "http://some_host.com/top1.json"
	schemaID2 := "http://some_host.com/top2.json"

	assert.NoError(t, v.ValidateString(`"short"`, schemaID1))
	assert.Error(t, v.ValidateString(`"a very long string"`, schemaID1))
	assert.NoError(t, v.ValidateString(`"a very long string"`, schemaID2))
	assert.Error(t, v.ValidateString(`"short"`, "http://some_host.com/unknown.json"))
}

func TestValidateStruct(t *testing.T) {
	v, err := schema.NewValidator([]string{postSchema}, nil)
	require.NoError(t, err)
	id := "https://scaffold.example.com/schemas/post.json"

	assert.NoError(t, v.ValidateStruct(map[string]interface{}{"title": "Hello", "author": 100}, id))

	err = v.ValidateStruct(map[string]interface{}{"author": "Ann"}, id)
	require.Error(t, err)
	var schemaErr *schema.Error
	require.True(t, errors.As(err, &schemaErr))
	fields := []string{}
	for _, d := range schemaErr.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"author", "title"}, fields)
}

func TestHasSchema(t *testing.T) {
	v, err := schema.NewValidator([]string{topLevel1, topLevel2}, []string{ref1, ref2})
	require.NoError(t, err)

	assert.True(t, v.HasSchema("http://some_host.com/top1.json"))
	assert.True(t, v.HasSchema("http://some_host.com/top2.json"))
	assert.False(t, v.HasSchema("http://some_host.com/unknownscehma.json"))

	var none *schema.Validator
	assert.False(t, none.HasSchema("http://some_host.com/top1.json"))
}

func TestNewValidatorFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"top1.json":      {Data: []byte(topLevel1)},
		"README.md":      {Data: []byte("not a schema")},
		"refs/ref1.json": {Data: []byte(ref1)},
		"refs/ref2.json": {Data: []byte(ref2)},
	}
	v, err := schema.NewValidatorFromFS(fsys)
	require.NoError(t, err)
	assert.True(t, v.HasSchema("http://some_host.com/top1.json"))

	v, err = schema.NewValidatorFromFS(fstest.MapFS{"post.json": {Data: []byte(postSchema)}})
	require.NoError(t, err)
	assert.True(t, v.HasSchema("https://scaffold.example.com/schemas/post.json"))
}
