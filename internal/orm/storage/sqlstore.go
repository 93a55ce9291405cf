package storage

import (
	"context"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wormsql/worm/internal/orm/schema"
)

// DebugEnv turns on statement logging when set to a non-empty value
const DebugEnv = "WORM_DEBUG"

// SQLStore renders statements with $N placeholders and runs them on a Conn
type SQLStore struct {
	logger *zap.Logger
	debug  bool
}

// Option configures a SQLStore
type Option func(*SQLStore)

// WithLogger sets the logger used for statement logging
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQLStore) {
		s.logger = logger
	}
}

// WithDebug logs every statement and its parameters before execution
func WithDebug(debug bool) Option {
	return func(s *SQLStore) {
		s.debug = debug
	}
}

// NewSQLStore creates a store. Diagnostic logging defaults to the WORM_DEBUG environment flag.
func NewSQLStore(opts ...Option) *SQLStore {
	s := &SQLStore{
		logger: zap.NewNop(),
		debug:  os.Getenv(DebugEnv) != "",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select runs a SELECT. With a limit or offset the root table is replaced by a
// subquery so the window counts root rows rather than joined rows.
func (s *SQLStore) Select(ctx context.Context, conn Conn, table string, q SelectQuery) ([]map[string]interface{}, error) {
	query := BuildSelect(table, q)
	s.trace(query, q.Params)

	rows, err := conn.QueryContext(ctx, query, q.Params...)
	if err != nil {
		return nil, wrap("select", table, err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, wrap("select", table, err)
	}
	return results, nil
}

// Update sets every non-id column of the row whose id is given. Placeholders
// follow column positions so the id keeps its own.
func (s *SQLStore) Update(ctx context.Context, conn Conn, table string, columns []Column) (int64, error) {
	query, args, err := BuildUpdate(table, columns)
	if err != nil {
		return 0, wrap("update", table, err)
	}
	s.trace(query, args)

	result, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrap("update", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, wrap("update", table, err)
	}
	return affected, nil
}

// Remove deletes the rows matching where
func (s *SQLStore) Remove(ctx context.Context, conn Conn, table string, where string, params []interface{}) error {
	query := "DELETE FROM " + table + " WHERE " + where
	s.trace(query, params)

	if _, err := conn.ExecContext(ctx, query, params...); err != nil {
		return wrap("delete", table, err)
	}
	return nil
}

// Insert writes a row. The id column is never written; with ReturnKey the
// generated id is returned.
func (s *SQLStore) Insert(ctx context.Context, conn Conn, table string, columns []Column, opts InsertOptions) (interface{}, error) {
	query, args := BuildInsert(table, columns, opts)
	s.trace(query, args)

	if !opts.ReturnKey {
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return nil, wrap("insert", table, err)
		}
		return nil, nil
	}

	var id interface{}
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, wrap("insert", table, err)
	}
	if b, ok := id.([]byte); ok {
		id = string(b)
	}
	return id, nil
}

func (s *SQLStore) trace(query string, params []interface{}) {
	if !s.debug {
		return
	}
	s.logger.Info("sql", zap.String("statement", query), zap.Any("params", params))
}

// BuildSelect renders a SELECT statement
func BuildSelect(table string, q SelectQuery) string {
	fields := q.Fields
	if fields == "" {
		fields = "*"
	}

	from := table
	if q.Offset > 0 || q.Limit > 0 {
		from = limitTable(table, q.Where, q.Offset, q.Limit)
	}

	var b strings.Builder
	b.WriteString("SELECT " + fields + " FROM " + from)
	if len(q.Joins) > 0 {
		b.WriteString(" " + strings.Join(q.Joins, " "))
	}
	if q.Where != "" {
		b.WriteString(" WHERE " + q.Where)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY " + q.OrderBy)
	}
	return b.String()
}

// limitTable windows the root table. The WHERE is repeated inside the subquery
// so the window only counts matching root rows.
func limitTable(table, where string, offset, limit int) string {
	var b strings.Builder
	b.WriteString("(SELECT * FROM " + table)
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	if offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(offset))
	}
	if limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(limit))
	}
	b.WriteString(") AS " + table)
	return b.String()
}

// BuildUpdate renders an UPDATE keyed by the id column
func BuildUpdate(table string, columns []Column) (string, []interface{}, error) {
	idIndex := -1
	sets := make([]string, 0, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		args[i] = col.Value
		if col.Name == schema.IDField {
			idIndex = i
			continue
		}
		sets = append(sets, col.Name+"=$"+strconv.Itoa(i+1))
	}
	if idIndex < 0 {
		return "", nil, ErrMissingKey
	}

	query := "UPDATE " + table + " SET " + strings.Join(sets, ",") + " WHERE id=$" + strconv.Itoa(idIndex+1)
	return query, args, nil
}

// BuildInsert renders an INSERT without the id column
func BuildInsert(table string, columns []Column, opts InsertOptions) (string, []interface{}) {
	names := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		if col.Name == schema.IDField {
			continue
		}
		args = append(args, col.Value)
		names = append(names, col.Name)
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}

	query := "INSERT INTO " + table + " (" + strings.Join(names, ",") + ") VALUES (" + strings.Join(placeholders, ",") + ")"
	if opts.ReturnKey {
		query += " RETURNING id"
	}
	return query, args
}
