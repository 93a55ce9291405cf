package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

// Tracker manages migration history in the database. The statements stay
// within SQL accepted by both PostgreSQL and SQLite.
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a new migration tracker
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Initialize ensures the worm_migrations table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS worm_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	down_sql TEXT
)`
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return nil
}

// Applied returns all applied migrations sorted by version. Down holds the
// SQL recorded when the migration ran, so rollbacks do not need the files.
func (t *Tracker) Applied(ctx context.Context) ([]*Migration, error) {
	rows, err := t.db.QueryContext(ctx,
		"SELECT version, name, applied_at, down_sql FROM worm_migrations ORDER BY version ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var migrations []*Migration
	for rows.Next() {
		m := &Migration{}
		var down sql.NullString
		if err := rows.Scan(&m.Version, &m.Name, &m.AppliedAt, &down); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		m.Down = down.String
		migrations = append(migrations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return migrations, nil
}

// Record marks a migration as applied
func (t *Tracker) Record(ctx context.Context, tx *sql.Tx, m *Migration) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO worm_migrations (version, name, down_sql) VALUES ($1, $2, $3)",
		m.Version, m.Name, m.Down)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

// Remove deletes a migration record
func (t *Tracker) Remove(ctx context.Context, tx *sql.Tx, version int64) error {
	result, err := tx.ExecContext(ctx, "DELETE FROM worm_migrations WHERE version = $1", version)
	if err != nil {
		return fmt.Errorf("failed to remove migration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	return nil
}

// Pending returns the migrations in all that haven't been applied yet
func (t *Tracker) Pending(ctx context.Context, all []*Migration) ([]*Migration, error) {
	applied, err := t.Applied(ctx)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[int64]bool, len(applied))
	for _, m := range applied {
		appliedSet[m.Version] = true
	}

	var pending []*Migration
	for _, m := range all {
		if !appliedSet[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}
