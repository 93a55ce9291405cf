// Package joins composes the aliased field lists and LEFT JOIN clauses needed to
// select an entity together with every entity reachable through its relationships.
package joins

import (
	"strings"

	"github.com/wormsql/worm/internal/orm/schema"
)

// Alias returns the result column name a projected field is selected as
func Alias(table, field string) string {
	return table + "_" + field
}

// ProjectedFields renders the persisted columns of an entity, in declaration
// order, as "table.field AS table_field" joined by commas
func ProjectedFields(e *schema.Entity) string {
	columns := e.Columns()
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = e.Table + "." + col + " AS " + Alias(e.Table, col)
	}
	return strings.Join(parts, ",")
}
