package crud

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wormsql/worm/internal/orm/joins"
	"github.com/wormsql/worm/internal/orm/query"
	"github.com/wormsql/worm/internal/orm/schema"
	"github.com/wormsql/worm/internal/orm/storage"
	"github.com/wormsql/worm/internal/orm/tracking"
	"github.com/wormsql/worm/internal/orm/unflatten"
)

// Create returns a new record of table populated with the schema defaults
// overlaid by data. The record has no snapshot, so its diff reports it as added.
func (e *Engine) Create(table string, data map[string]interface{}) (*tracking.Tracked, error) {
	entity, err := e.registry.Entity(table)
	if err != nil {
		return nil, err
	}

	record := entity.NewRecord()
	for k, v := range data {
		record[k] = schema.CopyValue(v)
	}
	return tracking.Untracked(record, entity), nil
}

// Get returns the record with the given key together with all of its children
func (e *Engine) Get(ctx context.Context, conn storage.Conn, table string, id interface{}) (*tracking.Tracked, error) {
	return e.getByKey(ctx, conn, table, id, true)
}

// GetSingle returns the record with the given key without its children
func (e *Engine) GetSingle(ctx context.Context, conn storage.Conn, table string, id interface{}) (*tracking.Tracked, error) {
	return e.getByKey(ctx, conn, table, id, false)
}

func (e *Engine) getByKey(ctx context.Context, conn storage.Conn, table string, id interface{}, children bool) (*tracking.Tracked, error) {
	entity, err := e.registry.Entity(table)
	if err != nil {
		return nil, err
	}
	key, err := entity.SingleKey()
	if err != nil {
		return nil, err
	}

	return e.GetBy(ctx, conn, table, query.Options{
		Where:         table + "." + key + "=$1",
		Params:        []interface{}{id},
		FetchChildren: &children,
	})
}

// GetBy returns the single record matching opts. When nothing matches, the
// default from opts is returned if set, otherwise ErrRecordNotFound.
func (e *Engine) GetBy(ctx context.Context, conn storage.Conn, table string, opts query.Options) (*tracking.Tracked, error) {
	results, err := e.List(ctx, conn, table, opts)
	if err != nil {
		return nil, err
	}

	switch len(results) {
	case 1:
		return results[0], nil
	case 0:
		if opts.Default == nil {
			return nil, fmt.Errorf("%w: %s where %s", ErrRecordNotFound, table, opts.Where)
		}
		entity, err := e.registry.Entity(table)
		if err != nil {
			return nil, err
		}
		return tracking.Untracked(tracking.Sanitize(opts.Default), entity), nil
	default:
		return nil, fmt.Errorf("%w: %d %s records where %s", ErrAmbiguousResult, len(results), table, opts.Where)
	}
}

// List returns every record matching opts. With children, the entity and all
// joinable relationships are read with one SELECT and rebuilt into trees;
// without, root rows are returned as-is and marked so a save leaves children alone.
func (e *Engine) List(ctx context.Context, conn storage.Conn, table string, opts query.Options) ([]*tracking.Tracked, error) {
	entity, err := e.registry.Entity(table)
	if err != nil {
		return nil, err
	}

	q := storage.SelectQuery{
		Fields:  "*",
		Where:   opts.Where,
		OrderBy: opts.OrderBy,
		Params:  opts.Params,
		Offset:  opts.Offset,
		Limit:   opts.Limit,
	}

	withChildren := opts.WithChildren()
	if withChildren {
		plan, err := joins.Compose(e.registry, entity)
		if err != nil {
			return nil, err
		}
		q.Fields = plan.Fields
		q.Joins = plan.Joins
	}

	rows, err := e.store.Select(ctx, conn, entity.Table, q)
	if err != nil {
		return nil, err
	}

	var records []map[string]interface{}
	if withChildren {
		records, err = unflatten.Rebuild(e.registry, rows, entity)
		if err != nil {
			return nil, err
		}
	} else {
		records = make([]map[string]interface{}, len(rows))
		for i, row := range rows {
			record := entity.NewRecord()
			for k, v := range row {
				record[k] = v
			}
			records[i] = record
		}
	}

	results := make([]*tracking.Tracked, len(records))
	for i, record := range records {
		tracked := tracking.Track(record, entity)
		tracked.NoChildren = !withChildren
		results[i] = tracked
	}
	return results, nil
}

// Count returns the number of rows matching opts. Relationships are not joined.
func (e *Engine) Count(ctx context.Context, conn storage.Conn, table string, opts query.Options) (int64, error) {
	entity, err := e.registry.Entity(table)
	if err != nil {
		return 0, err
	}

	rows, err := e.store.Select(ctx, conn, entity.Table, storage.SelectQuery{
		Fields: "count(*) AS count",
		Where:  opts.Where,
		Params: opts.Params,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["count"])
}

// GetChildren loads every relationship of record with one read per relationship
// and returns a copy of record with the related records filled in
func (e *Engine) GetChildren(ctx context.Context, conn storage.Conn, table string, record map[string]interface{}) (map[string]interface{}, error) {
	entity, err := e.registry.Entity(table)
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{}, len(record))
	for k, v := range record {
		result[k] = v
	}

	for _, rel := range entity.Relationships {
		target, err := e.registry.Entity(rel.MapsTo)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, rel.Field, err)
		}

		where, params, err := childFilter(entity, rel, target, record)
		if err != nil {
			return nil, err
		}

		children, err := e.List(ctx, conn, target.Table, query.Options{Where: where, Params: params})
		if err != nil {
			return nil, err
		}

		data := make([]map[string]interface{}, len(children))
		for i, child := range children {
			data[i] = child.Data
		}

		if rel.Plural() {
			result[rel.Field] = data
		} else if len(data) > 0 {
			result[rel.Field] = data[0]
		} else {
			result[rel.Field] = nil
		}
	}

	return result, nil
}

// childFilter builds the WHERE selecting the rows related to record
func childFilter(owner *schema.Entity, rel *schema.Relationship, target *schema.Entity, record map[string]interface{}) (string, []interface{}, error) {
	switch rel.Kind() {
	case schema.ManyToOne:
		key, err := target.SingleKey()
		if err != nil {
			return "", nil, err
		}
		return target.Table + "." + key + "=$1", []interface{}{record[rel.WithOurField]}, nil
	case schema.CompositeOneToMany:
		params := make([]interface{}, len(rel.WithFields))
		for i, f := range rel.WithFields {
			params[i] = record[f]
		}
		return qualifiedWhere(target.Table, rel.WithFields), params, nil
	default:
		key, err := owner.SingleKey()
		if err != nil {
			return "", nil, err
		}
		return target.Table + "." + rel.WithField + "=$1", []interface{}{record[key]}, nil
	}
}

// fieldsWhere renders "f1=$1 and f2=$2"
func fieldsWhere(fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + "=$" + strconv.Itoa(i+1)
	}
	return strings.Join(parts, " and ")
}

func qualifiedWhere(table string, fields []string) string {
	qualified := make([]string, len(fields))
	for i, f := range fields {
		qualified[i] = table + "." + f
	}
	return fieldsWhere(qualified)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count value %v (%T)", v, v)
	}
}
