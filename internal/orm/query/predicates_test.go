package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionRendering(t *testing.T) {
	tests := []struct {
		name   string
		group  *PredicateGroup
		sql    string
		params []interface{}
	}{
		{"equal", And(Cond("name", OpEqual, "x")), "name=$1", []interface{}{"x"}},
		{"comparison", And(Cond("age", OpGreaterThanOrEqual, 18), Cond("age", OpLessThan, 65)), "age>=$1 AND age<$2", []interface{}{18, 65}},
		{"like", And(Cond("name", OpILike, "a%")), "name ILIKE $1", []interface{}{"a%"}},
		{"in keeps the list", And(Cond("id", OpIn, []int{1, 2})), "id IN ($1)", []interface{}{[]int{1, 2}}},
		{"empty not in", And(Cond("id", OpNotIn, []int{})), "TRUE", nil},
		{"null checks", Or(Cond("a", OpIsNull, nil), Cond("b", OpIsNotNull, nil)), "a IS NULL OR b IS NOT NULL", nil},
		{"between", And(Cond("n", OpBetween, []interface{}{1, 9})), "n BETWEEN $1 AND $2", []interface{}{1, 9}},
		{
			"nested group",
			And(Cond("a", OpEqual, 1)).AddGroup(Or(Cond("b", OpEqual, 2), Cond("c", OpEqual, 3))),
			"a=$1 AND (b=$2 OR c=$3)",
			[]interface{}{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := tt.group.Fragment()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestConditionErrors(t *testing.T) {
	_, _, err := And(Cond("id", OpIn, 5)).Fragment()
	assert.Error(t, err)

	_, _, err = And(Cond("n", OpBetween, []int{1})).Fragment()
	assert.Error(t, err)
}

func TestWherePredicateExpandsLists(t *testing.T) {
	opts, err := New().
		Where("deleted=$1", false).
		WherePredicate(And(Cond("id", OpIn, []int{4, 5, 6}), Cond("kind", OpEqual, "x"))).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "deleted=$1 AND id IN ($2,$3,$4) AND kind=$5", opts.Where)
	assert.Equal(t, []interface{}{false, 4, 5, 6, "x"}, opts.Params)

	_, err = New().WherePredicate(And(Cond("id", OpIn, "nope"))).Build()
	assert.Error(t, err)
}
