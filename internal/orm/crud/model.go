package crud

import (
	"context"

	"github.com/wormsql/worm/internal/orm/query"
	"github.com/wormsql/worm/internal/orm/storage"
	"github.com/wormsql/worm/internal/orm/tracking"
)

// Model is an engine bound to one connection and one table.
// It is the Runner behind fluent queries.
type Model struct {
	engine *Engine
	conn   storage.Conn
	table  string
}

var _ query.Runner = (*Model)(nil)

// Table returns the table the model reads and writes
func (m *Model) Table() string {
	return m.table
}

// Query starts a fluent query against the model's table
func (m *Model) Query() *query.Builder {
	return query.For(m)
}

// List implements query.Runner
func (m *Model) List(ctx context.Context, opts query.Options) ([]*tracking.Tracked, error) {
	return m.engine.List(ctx, m.conn, m.table, opts)
}

// GetBy implements query.Runner
func (m *Model) GetBy(ctx context.Context, opts query.Options) (*tracking.Tracked, error) {
	return m.engine.GetBy(ctx, m.conn, m.table, opts)
}

// Count implements query.Runner
func (m *Model) Count(ctx context.Context, opts query.Options) (int64, error) {
	return m.engine.Count(ctx, m.conn, m.table, opts)
}

// Get returns the record with the given key and its children
func (m *Model) Get(ctx context.Context, id interface{}) (*tracking.Tracked, error) {
	return m.engine.Get(ctx, m.conn, m.table, id)
}

// GetSingle returns the record with the given key without its children
func (m *Model) GetSingle(ctx context.Context, id interface{}) (*tracking.Tracked, error) {
	return m.engine.GetSingle(ctx, m.conn, m.table, id)
}

// Create returns an unsaved record of this model's table
func (m *Model) Create(data map[string]interface{}) (*tracking.Tracked, error) {
	return m.engine.Create(m.table, data)
}

// Save persists a tracked record of this model's table
func (m *Model) Save(ctx context.Context, t *tracking.Tracked) error {
	return m.engine.SaveTracked(ctx, m.conn, t)
}
