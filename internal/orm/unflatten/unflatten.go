// Package unflatten turns the flat rows produced by a joined SELECT back into
// a tree of records shaped by the schema's relationships.
package unflatten

import (
	"fmt"
	"strings"

	"github.com/wormsql/worm/internal/orm/joins"
	"github.com/wormsql/worm/internal/orm/schema"
)

// Rebuild groups rows by the key columns of e and returns one record per group
// in order of first appearance. Rows with a missing key value are discarded,
// since they come from a LEFT JOIN without a match. Each relationship is rebuilt
// from the same group of rows.
func Rebuild(reg *schema.Registry, rows []map[string]interface{}, e *schema.Entity) ([]map[string]interface{}, error) {
	r := &rebuilder{
		reg:    reg,
		onPath: make(map[string]bool),
	}
	return r.rebuild(rows, e)
}

// Rename strips the table prefix from the aliased columns of a single row and
// overlays schema defaults for every field the row does not carry
func Rename(row map[string]interface{}, e *schema.Entity) map[string]interface{} {
	record := make(map[string]interface{}, len(e.Fields))
	for _, f := range e.Fields {
		if e.IsColumn(f.Name) {
			if v, ok := row[joins.Alias(e.Table, f.Name)]; ok {
				record[f.Name] = v
				continue
			}
		}
		record[f.Name] = schema.CopyValue(f.Default)
	}
	return record
}

type rebuilder struct {
	reg    *schema.Registry
	onPath map[string]bool
}

type group struct {
	rows []map[string]interface{}
}

func (r *rebuilder) rebuild(rows []map[string]interface{}, e *schema.Entity) ([]map[string]interface{}, error) {
	if r.onPath[e.Table] {
		return nil, fmt.Errorf("%w: %s is reachable from itself", schema.ErrInfiniteSchemaLoop, e.Table)
	}
	r.onPath[e.Table] = true
	defer delete(r.onPath, e.Table)

	keyFields := e.KeyFields()
	if len(keyFields) == 0 {
		keyFields = e.Columns()
	}

	var order []string
	groups := make(map[string]*group)
	for _, row := range rows {
		key, ok := groupKey(row, e.Table, keyFields)
		if !ok {
			continue
		}
		g, exists := groups[key]
		if !exists {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}

	records := make([]map[string]interface{}, 0, len(order))
	for _, key := range order {
		g := groups[key]
		record := Rename(g.rows[0], e)

		for _, rel := range e.Relationships {
			if rel.InsertOnly {
				if def, ok := e.Default(rel.Field); ok && def != nil {
					record[rel.Field] = def
				} else {
					record[rel.Field] = []map[string]interface{}{}
				}
				continue
			}

			target, err := r.reg.Entity(rel.MapsTo)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Table, rel.Field, err)
			}
			children, err := r.rebuild(g.rows, target)
			if err != nil {
				return nil, err
			}

			if rel.Plural() {
				record[rel.Field] = children
			} else if len(children) > 0 {
				record[rel.Field] = children[0]
			} else {
				record[rel.Field] = nil
			}
		}

		records = append(records, record)
	}

	return records, nil
}

// groupKey renders the key tuple of a row. It reports false when any key value is
// nil or absent. Entities without a key are grouped by all of their columns.
func groupKey(row map[string]interface{}, table string, keyFields []string) (string, bool) {
	if len(keyFields) == 0 {
		return "", false
	}

	var b strings.Builder
	for i, field := range keyFields {
		v, ok := row[joins.Alias(table, field)]
		if !ok || v == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0)
		}
		fmt.Fprintf(&b, "%T:%v", v, v)
	}
	return b.String(), true
}
