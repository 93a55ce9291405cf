// Package storage defines the statement-level collaborator the mapping engine
// talks to, and a database/sql implementation of it.
package storage

import (
	"context"
	"database/sql"
)

// Conn is satisfied by *sql.DB, *sql.Tx and *sql.Conn. Passing a *sql.Tx runs
// every statement of an operation inside the caller's transaction.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Column is a column name with the value to write
type Column struct {
	Name  string
	Value interface{}
}

// SelectQuery describes a SELECT. Empty parts are omitted.
type SelectQuery struct {
	Fields  string
	Where   string
	OrderBy string
	Params  []interface{}
	Joins   []string

	// Offset and Limit apply to rows of the root table, not to joined rows
	Offset int
	Limit  int
}

// InsertOptions controls an INSERT
type InsertOptions struct {
	// ReturnKey asks for the generated id
	ReturnKey bool
}

// Store executes the statements the engine composes. Values always travel as parameters.
type Store interface {
	Select(ctx context.Context, conn Conn, table string, q SelectQuery) ([]map[string]interface{}, error)
	Update(ctx context.Context, conn Conn, table string, columns []Column) (int64, error)
	Remove(ctx context.Context, conn Conn, table string, where string, params []interface{}) error
	Insert(ctx context.Context, conn Conn, table string, columns []Column, opts InsertOptions) (interface{}, error)
}
