package joins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormsql/worm/internal/orm/schema"
)

func threeLevelRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	reg.MustRegister(
		&schema.Entity{
			Table:  "data",
			Fields: []schema.Field{schema.F("id", nil), schema.F("field1", ""), schema.F("field2", ""), schema.F("children", []interface{}{})},
			Relationships: []*schema.Relationship{
				{Field: "children", MapsTo: "child", WithField: "data_id"},
			},
		},
		&schema.Entity{
			Table:      "child",
			PrimaryKey: []string{"data_id", "grandchild_id"},
			Fields:     []schema.Field{schema.F("data_id", nil), schema.F("grandchild_id", nil)},
			Relationships: []*schema.Relationship{
				{Field: "grandchildren", MapsTo: "grandchild", WithFields: []string{"data_id", "grandchild_id"}},
			},
		},
		&schema.Entity{
			Table:  "grandchild",
			Fields: []schema.Field{schema.F("data_id", nil), schema.F("grandchild_id", nil)},
		},
	)
	return reg
}

func TestProjectedFields(t *testing.T) {
	reg := threeLevelRegistry(t)
	data, _ := reg.Lookup("data")

	assert.Equal(t, "data.id AS data_id,data.field1 AS data_field1,data.field2 AS data_field2", ProjectedFields(data))
}

func TestCompose(t *testing.T) {
	reg := threeLevelRegistry(t)
	data, _ := reg.Lookup("data")

	plan, err := Compose(reg, data)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"LEFT JOIN child ON data.id=child.data_id",
		"LEFT JOIN grandchild ON child.data_id=grandchild.data_id AND child.grandchild_id=grandchild.grandchild_id",
	}, plan.Joins)
	assert.Equal(t,
		"data.id AS data_id,data.field1 AS data_field1,data.field2 AS data_field2,"+
			"child.data_id AS child_data_id,child.grandchild_id AS child_grandchild_id,"+
			"grandchild.data_id AS grandchild_data_id,grandchild.grandchild_id AS grandchild_grandchild_id",
		plan.Fields)
}

func TestComposeManyToOne(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(
		&schema.Entity{
			Table:         "post",
			Fields:        []schema.Field{schema.F("id", 0), schema.F("author_id", 0), schema.F("author", map[string]interface{}{})},
			Relationships: []*schema.Relationship{{Field: "author", MapsTo: "author", WithOurField: "author_id"}},
		},
		&schema.Entity{Table: "author", Fields: []schema.Field{schema.F("id", 0), schema.F("name", "")}},
	)
	post, _ := reg.Lookup("post")

	plan, err := Compose(reg, post)
	require.NoError(t, err)
	assert.Equal(t, []string{"LEFT JOIN author ON post.author_id=author.id"}, plan.Joins)
	assert.Equal(t, "LEFT JOIN author ON post.author_id=author.id", plan.JoinClause())
}

func TestComposeSkipsInsertOnly(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(
		&schema.Entity{
			Table:         "account",
			Fields:        []schema.Field{schema.F("id", 0), schema.F("audit", []interface{}{})},
			Relationships: []*schema.Relationship{{Field: "audit", MapsTo: "audit", WithField: "account_id", InsertOnly: true}},
		},
		&schema.Entity{Table: "audit", Fields: []schema.Field{schema.F("id", 0), schema.F("account_id", 0)}},
	)
	account, _ := reg.Lookup("account")

	plan, err := Compose(reg, account)
	require.NoError(t, err)
	assert.Empty(t, plan.Joins)
	assert.Equal(t, "account.id AS account_id", plan.Fields)
}

func TestComposeErrors(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		reg := schema.NewRegistry()
		reg.MustRegister(
			&schema.Entity{
				Table:         "a",
				Fields:        []schema.Field{schema.F("id", 0), schema.F("bs", []interface{}{})},
				Relationships: []*schema.Relationship{{Field: "bs", MapsTo: "b", WithField: "a_id"}},
			},
			&schema.Entity{
				Table:         "b",
				Fields:        []schema.Field{schema.F("id", 0), schema.F("a_id", 0), schema.F("as", []interface{}{})},
				Relationships: []*schema.Relationship{{Field: "as", MapsTo: "a", WithField: "b_id"}},
			},
		)
		a, _ := reg.Lookup("a")

		_, err := Compose(reg, a)
		assert.ErrorIs(t, err, schema.ErrInfiniteSchemaLoop)
	})

	t.Run("unknown target", func(t *testing.T) {
		reg := schema.NewRegistry()
		reg.MustRegister(&schema.Entity{
			Table:         "a",
			Fields:        []schema.Field{schema.F("id", 0)},
			Relationships: []*schema.Relationship{{Field: "bs", MapsTo: "missing", WithField: "a_id"}},
		})
		a, _ := reg.Lookup("a")

		_, err := Compose(reg, a)
		assert.ErrorIs(t, err, schema.ErrUnknownEntity)
	})

	t.Run("owner without single key", func(t *testing.T) {
		reg := schema.NewRegistry()
		reg.MustRegister(
			&schema.Entity{
				Table:         "a",
				Fields:        []schema.Field{schema.F("x", 0), schema.F("y", 0)},
				PrimaryKey:    []string{"x", "y"},
				Relationships: []*schema.Relationship{{Field: "bs", MapsTo: "b", WithField: "a_id"}},
			},
			&schema.Entity{Table: "b", Fields: []schema.Field{schema.F("id", 0), schema.F("a_id", 0)}},
		)
		a, _ := reg.Lookup("a")

		_, err := Compose(reg, a)
		assert.ErrorIs(t, err, schema.ErrInvalidSchema)
	})
}
