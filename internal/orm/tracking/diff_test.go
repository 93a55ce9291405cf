package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormsql/worm/internal/orm/schema"
)

func TestSimpleObject(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(&schema.Entity{Table: "obj", Fields: []schema.Field{schema.F("a", nil), schema.F("b", nil)}})
	obj, _ := reg.Lookup("obj")

	t.Run("unchanged", func(t *testing.T) {
		tracked := Track(map[string]interface{}{"a": 1, "b": 2}, obj)

		diff, err := tracked.Diff(reg)
		require.NoError(t, err)
		assert.Equal(t, &Diff{Status: StatusUnchanged, Obj: map[string]interface{}{"a": 1, "b": 2}}, diff)
	})

	t.Run("changed", func(t *testing.T) {
		tracked := Track(map[string]interface{}{"a": 1, "b": 2}, obj)
		tracked.Data["b"] = 4

		diff, err := tracked.Diff(reg)
		require.NoError(t, err)
		assert.Equal(t, &Diff{
			Status: StatusChanged,
			Obj:    map[string]interface{}{"a": 1, "b": 4},
			Change: map[string]FieldChange{"b": {From: 2, To: 4}},
		}, diff)
	})

	t.Run("private keys are dropped", func(t *testing.T) {
		tracked := Track(map[string]interface{}{"a": 1, "b": 2}, obj)
		tracked.Data["__cursor"] = "x"

		diff, err := tracked.Diff(reg)
		require.NoError(t, err)
		assert.Equal(t, StatusUnchanged, diff.Status)
		assert.NotContains(t, diff.Obj, "__cursor")
	})

	t.Run("times compare by instant", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		tracked := Track(map[string]interface{}{"a": now, "b": 2}, obj)
		tracked.Data["a"] = now.In(time.FixedZone("X", 3600))

		diff, err := tracked.Diff(reg)
		require.NoError(t, err)
		assert.Equal(t, StatusUnchanged, diff.Status)
	})

	t.Run("strict equality", func(t *testing.T) {
		tracked := Track(map[string]interface{}{"a": 1, "b": 2}, obj)
		tracked.Data["a"] = int64(1)

		diff, err := tracked.Diff(reg)
		require.NoError(t, err)
		assert.Equal(t, StatusChanged, diff.Status)
	})
}

func TestOneToOneObject(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(
		&schema.Entity{
			Table:         "obj",
			Fields:        []schema.Field{schema.F("a", nil), schema.F("b", nil), schema.F("child", map[string]interface{}{})},
			Relationships: []*schema.Relationship{{Field: "child", MapsTo: "child", WithOurField: "x"}},
		},
		&schema.Entity{
			Table:      "child",
			Fields:     []schema.Field{schema.F("x", nil), schema.F("y", nil), schema.F("z", nil)},
			PrimaryKey: []string{"x"},
		},
	)
	obj, _ := reg.Lookup("obj")

	tracked := Track(map[string]interface{}{"a": 1, "b": 2, "child": map[string]interface{}{"x": 1, "y": 2, "z": 3}}, obj)
	tracked.Data["child"].(map[string]interface{})["y"] = 42

	diff, err := tracked.Diff(reg)
	require.NoError(t, err)

	assert.Equal(t, StatusUnchanged, diff.Status)
	assert.Equal(t, &Diff{
		Status: StatusChanged,
		Obj:    map[string]interface{}{"x": 1, "y": 42, "z": 3},
		Change: map[string]FieldChange{"y": {From: 2, To: 42}},
	}, diff.Obj["child"])

	t.Run("replaced child", func(t *testing.T) {
		tracked := Track(map[string]interface{}{"a": 1, "b": 2, "child": map[string]interface{}{"x": 1, "y": 2, "z": 3}}, obj)
		tracked.Data["child"] = map[string]interface{}{"x": 9, "y": 2, "z": 3}

		diff, err := tracked.Diff(reg)
		require.NoError(t, err)
		assert.Equal(t, StatusAdded, diff.Obj["child"].(*Diff).Status)
		assert.Equal(t, []map[string]interface{}{{"x": 1, "y": 2, "z": 3}}, diff.Removed["child"])
	})
}

func oneToManyRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.MustRegister(
		&schema.Entity{
			Table:         "obj",
			Fields:        []schema.Field{schema.F("id", nil), schema.F("b", nil), schema.F("children", []interface{}{})},
			Relationships: []*schema.Relationship{{Field: "children", MapsTo: "child", WithField: "parentId"}},
		},
		&schema.Entity{
			Table:      "child",
			Fields:     []schema.Field{schema.F("parentId", nil), schema.F("childId", nil), schema.F("x", nil)},
			PrimaryKey: []string{"parentId", "childId"},
		},
	)
	return reg
}

func TestOneToManyObject(t *testing.T) {
	reg := oneToManyRegistry()
	obj, _ := reg.Lookup("obj")

	tracked := Track(map[string]interface{}{
		"id": 1, "b": 2,
		"children": []map[string]interface{}{
			{"parentId": 1, "childId": 1, "x": 1},
			{"parentId": 1, "childId": 2, "x": 32},
		},
	}, obj)
	tracked.Data["children"].([]map[string]interface{})[1]["x"] = 42

	diff, err := tracked.Diff(reg)
	require.NoError(t, err)

	children := diff.Obj["children"].([]*Diff)
	require.Len(t, children, 2)
	assert.Equal(t, &Diff{Status: StatusUnchanged, Obj: map[string]interface{}{"parentId": 1, "childId": 1, "x": 1}}, children[0])
	assert.Equal(t, &Diff{
		Status: StatusChanged,
		Obj:    map[string]interface{}{"parentId": 1, "childId": 2, "x": 42},
		Change: map[string]FieldChange{"x": {From: 32, To: 42}},
	}, children[1])

	// the live record is untouched
	assert.Equal(t, map[string]interface{}{
		"id": 1, "b": 2,
		"children": []map[string]interface{}{
			{"parentId": 1, "childId": 1, "x": 1},
			{"parentId": 1, "childId": 2, "x": 42},
		},
	}, tracked.Data)
}

func TestChildrenMatchedByKey(t *testing.T) {
	reg := oneToManyRegistry()
	obj, _ := reg.Lookup("obj")

	tracked := Track(map[string]interface{}{
		"id": 1,
		"children": []map[string]interface{}{
			{"parentId": 1, "childId": 1, "x": 1},
			{"parentId": 1, "childId": 2, "x": 2},
		},
	}, obj)
	tracked.Data["children"] = []map[string]interface{}{
		{"parentId": 1, "childId": 2, "x": 2},
		{"parentId": nil, "childId": nil, "x": 3},
	}

	diff, err := tracked.Diff(reg)
	require.NoError(t, err)

	children := diff.Obj["children"].([]*Diff)
	require.Len(t, children, 2)
	assert.Equal(t, StatusUnchanged, children[0].Status)
	assert.Equal(t, StatusAdded, children[1].Status)
	assert.Equal(t, []map[string]interface{}{{"parentId": 1, "childId": 1, "x": 1}}, diff.Removed["children"])
}

func TestCompareWithoutSnapshot(t *testing.T) {
	reg := oneToManyRegistry()
	obj, _ := reg.Lookup("obj")

	diff, err := Compare(reg, obj, map[string]interface{}{
		"id":       nil,
		"children": []interface{}{map[string]interface{}{"parentId": nil, "childId": 5, "x": 1}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusAdded, diff.Status)
	assert.Nil(t, diff.Change)
	children := diff.Obj["children"].([]*Diff)
	require.Len(t, children, 1)
	assert.Equal(t, StatusAdded, children[0].Status)
}

func TestResetAndReplace(t *testing.T) {
	reg := oneToManyRegistry()
	obj, _ := reg.Lookup("obj")

	tracked := Track(map[string]interface{}{"id": 1, "b": 2}, obj)
	tracked.Data["b"] = 3
	assert.True(t, tracked.Changed("b"))
	assert.False(t, tracked.Changed("id"))
	assert.Equal(t, []string{"b"}, tracked.ChangedFields())
	assert.Equal(t, 2, tracked.PreviousValue("b"))

	tracked.Reset()
	assert.False(t, tracked.Changed("b"))
	assert.Empty(t, tracked.ChangedFields())

	tracked.Replace(map[string]interface{}{"id": 7, "b": 1})
	assert.Equal(t, 7, tracked.Snapshot()["id"])

	diff, err := tracked.Diff(reg)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, diff.Status)
}

func TestSnapshotIsIndependent(t *testing.T) {
	reg := oneToManyRegistry()
	obj, _ := reg.Lookup("obj")

	tracked := Track(map[string]interface{}{
		"id":       1,
		"tags":     []string{"a"},
		"children": []map[string]interface{}{{"parentId": 1, "childId": 1, "x": 1}},
	}, obj)
	tracked.Data["tags"].([]string)[0] = "b"

	assert.Equal(t, []string{"a"}, tracked.Snapshot()["tags"])
	assert.True(t, tracked.Changed("tags"))
}

func threeLevelRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.MustRegister(
		&schema.Entity{
			Table:         "a",
			Fields:        []schema.Field{schema.F("id", nil), schema.F("bs", []interface{}{})},
			Relationships: []*schema.Relationship{{Field: "bs", MapsTo: "b", WithField: "a_id"}},
		},
		&schema.Entity{
			Table:         "b",
			Fields:        []schema.Field{schema.F("id", nil), schema.F("a_id", nil), schema.F("cs", []interface{}{})},
			Relationships: []*schema.Relationship{{Field: "cs", MapsTo: "c", WithField: "b_id"}},
		},
		&schema.Entity{
			Table:  "c",
			Fields: []schema.Field{schema.F("id", nil), schema.F("b_id", nil), schema.F("v", nil)},
		},
	)
	return reg
}

func threeLevelRecord() map[string]interface{} {
	return map[string]interface{}{
		"id": 1,
		"bs": []map[string]interface{}{{
			"id": 10, "a_id": 1,
			"cs": []map[string]interface{}{
				{"id": 100, "b_id": 10, "v": "x"},
				{"id": 101, "b_id": 10, "v": "z"},
			},
		}},
	}
}

func TestThreeLevelHierarchy(t *testing.T) {
	reg := threeLevelRegistry()
	a, _ := reg.Lookup("a")

	tracked := Track(threeLevelRecord(), a)
	tracked.Data["bs"].([]map[string]interface{})[0]["cs"].([]map[string]interface{})[0]["v"] = "y"

	diff, err := tracked.Diff(reg)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, diff.Status)
	assert.Nil(t, diff.Change)

	bs := diff.Obj["bs"].([]*Diff)
	require.Len(t, bs, 1)
	assert.Equal(t, StatusUnchanged, bs[0].Status)
	assert.Equal(t, 10, bs[0].Obj["id"])

	cs := bs[0].Obj["cs"].([]*Diff)
	require.Len(t, cs, 2)
	assert.Equal(t, &Diff{
		Status: StatusChanged,
		Obj:    map[string]interface{}{"id": 100, "b_id": 10, "v": "y"},
		Change: map[string]FieldChange{"v": {From: "x", To: "y"}},
	}, cs[0])
	assert.Equal(t, StatusUnchanged, cs[1].Status)
}

func TestDiffIsIdempotent(t *testing.T) {
	reg := threeLevelRegistry()
	a, _ := reg.Lookup("a")

	tracked := Track(threeLevelRecord(), a)
	before := schema.CopyRecord(tracked.Data)

	first, err := tracked.Diff(reg)
	require.NoError(t, err)
	second, err := tracked.Diff(reg)
	require.NoError(t, err)

	assert.Equal(t, StatusUnchanged, first.Status)
	assert.Equal(t, StatusUnchanged, second.Status)
	assert.Equal(t, first, second)
	assert.Equal(t, before, tracked.Data)
}

func TestDroppedRelationshipField(t *testing.T) {
	reg := oneToManyRegistry()
	obj, _ := reg.Lookup("obj")

	tracked := Track(map[string]interface{}{
		"id": 1,
		"children": []map[string]interface{}{
			{"parentId": 1, "childId": 1, "x": 1},
			{"parentId": 1, "childId": 2, "x": 2},
		},
	}, obj)
	delete(tracked.Data, "children")

	diff, err := tracked.Diff(reg)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, diff.Status)
	assert.NotContains(t, diff.Obj, "children")
	assert.Equal(t, []map[string]interface{}{
		{"parentId": 1, "childId": 1, "x": 1},
		{"parentId": 1, "childId": 2, "x": 2},
	}, diff.Removed["children"])
}
