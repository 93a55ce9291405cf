package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogSchema = `
table: post
fields:
  id: 0
  title: ""
  body: ""
  comments: []
  author: {}
  author_id: 0
relationships:
  - field: comments
    maps_to: comment
    with_field: post_id
    cascade_delete: true
  - field: author
    maps_to: author
    with_our_field: author_id
---
table: post_tag
fields:
  post_id: 0
  tag_id: 0
many_to_many:
  parent_field: post_id
  child_field: tag_id
`

func TestLoad(t *testing.T) {
	entities, err := Load(strings.NewReader(blogSchema))
	require.NoError(t, err)
	require.Len(t, entities, 2)

	post := entities[0]
	assert.Equal(t, "post", post.Table)

	names := make([]string, len(post.Fields))
	for i, f := range post.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"id", "title", "body", "comments", "author", "author_id"}, names)

	require.Len(t, post.Relationships, 2)
	assert.Equal(t, "post_id", post.Relationships[0].WithField)
	assert.True(t, post.Relationships[0].CascadeDelete)
	assert.Equal(t, ManyToOne, post.Relationships[1].Kind())

	link := entities[1]
	require.NotNil(t, link.ManyToMany)
	assert.Equal(t, "tag_id", link.ManyToMany.ChildField)

	registry := NewRegistry()
	registry.MustRegister(post, link)
	stored, _ := registry.Lookup("post")
	assert.Equal(t, []string{"id", "title", "body", "author_id"}, stored.Columns())
}

func TestLoadRejectsBadShapes(t *testing.T) {
	_, err := Load(strings.NewReader("table: t\nfields: [a, b]\n"))
	assert.ErrorIs(t, err, ErrInvalidSchema)

	_, err = Load(strings.NewReader("table: t\nfields:\n  id: 0\nrelationships:\n  field: x\n"))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("table: b\nfields:\n  id: 0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("table: a\nfields:\n  id: 0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	entities, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "a", entities[0].Table)
	assert.Equal(t, "b", entities[1].Table)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadValidateSection(t *testing.T) {
	entities, err := Load(strings.NewReader(`
table: account
fields:
  id: 0
  email: ""
  handle: ""
  age: 0
validate:
  required: [email]
  emails: [email]
  patterns:
    handle: "^[a-z]+$"
  lengths:
    handle: {min: 2, max: 12}
  min:
    age: 13
`))
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.NotNil(t, entities[0].Validator)

	valid := map[string]interface{}{"email": "a@example.com", "handle": "ook", "age": 30}
	assert.Empty(t, entities[0].Validator(valid))

	errs := entities[0].Validator(map[string]interface{}{"email": "", "handle": "Xyz", "age": 3})
	// required, email, pattern, min
	assert.Len(t, errs, 4)

	_, err = Load(strings.NewReader("table: t\nfields: {a: 1}\nvalidate:\n  patterns: {a: \"(\"}\n"))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}
