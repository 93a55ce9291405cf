package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpILike
	OpIsNull
	OpIsNotNull
	OpBetween
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// Condition is a single column comparison
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Cond creates a condition
func Cond(field string, op Operator, value interface{}) *Condition {
	return &Condition{Field: field, Operator: op, Value: value}
}

// PredicateGroup combines conditions and nested groups with AND or OR
type PredicateGroup struct {
	Conditions []*Condition
	Groups     []*PredicateGroup
	Or         bool
}

// And creates an AND group
func And(conds ...*Condition) *PredicateGroup {
	return &PredicateGroup{Conditions: conds}
}

// Or creates an OR group
func Or(conds ...*Condition) *PredicateGroup {
	return &PredicateGroup{Conditions: conds, Or: true}
}

// AddGroup adds a nested group
func (pg *PredicateGroup) AddGroup(group *PredicateGroup) *PredicateGroup {
	pg.Groups = append(pg.Groups, group)
	return pg
}

// Fragment renders the group as a WHERE fragment numbered from $1 together with
// its parameters, ready to be passed to Builder.Where
func (pg *PredicateGroup) Fragment() (string, []interface{}, error) {
	var params []interface{}
	sql, err := pg.render(&params)
	if err != nil {
		return "", nil, err
	}
	return sql, params, nil
}

func (pg *PredicateGroup) render(params *[]interface{}) (string, error) {
	parts := make([]string, 0, len(pg.Conditions)+len(pg.Groups))

	for _, cond := range pg.Conditions {
		sql, err := cond.render(params)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	for _, group := range pg.Groups {
		sql, err := group.render(params)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, "("+sql+")")
		}
	}

	connector := " AND "
	if pg.Or {
		connector = " OR "
	}
	return strings.Join(parts, connector), nil
}

// render appends the condition's parameters. IN lists stay a single slice
// parameter; Renumber expands them when the fragment is bound.
func (c *Condition) render(params *[]interface{}) (string, error) {
	bind := func(v interface{}) string {
		*params = append(*params, v)
		return "$" + strconv.Itoa(len(*params))
	}

	switch c.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		return c.Field + c.Operator.String() + bind(c.Value), nil

	case OpLike, OpILike:
		return c.Field + " " + c.Operator.String() + " " + bind(c.Value), nil

	case OpIn, OpNotIn:
		values, ok := expand(c.Value)
		if !ok {
			return "", fmt.Errorf("%s operator requires a slice value", c.Operator)
		}
		if len(values) == 0 && c.Operator == OpNotIn {
			// NOT IN (NULL) is never true
			return "TRUE", nil
		}
		return c.Field + " " + c.Operator.String() + " (" + bind(c.Value) + ")", nil

	case OpIsNull, OpIsNotNull:
		return c.Field + " " + c.Operator.String(), nil

	case OpBetween:
		values, ok := expand(c.Value)
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("BETWEEN operator requires [min, max] values")
		}
		return c.Field + " BETWEEN " + bind(values[0]) + " AND " + bind(values[1]), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", c.Operator)
	}
}
