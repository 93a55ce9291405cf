// Package transaction runs engine work inside database transactions so that a
// multi-table save either commits as a whole or leaves no rows behind.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrDeadlock is returned when retries are exhausted on deadlocks or serialization failures
	ErrDeadlock = errors.New("deadlock detected")
	// ErrNoDatabase is returned when the manager has no database handle
	ErrNoDatabase = errors.New("transaction manager has no database")
)

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted IsolationLevel = iota
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// ParseIsolationLevel maps a configuration value to a level. Unknown values fall back to ReadCommitted.
func ParseIsolationLevel(s string) IsolationLevel {
	switch s {
	case "repeatable_read", "REPEATABLE READ":
		return RepeatableRead
	case "serializable", "SERIALIZABLE":
		return Serializable
	default:
		return ReadCommitted
	}
}

// txOptions converts the level to sql.TxOptions. ReadCommitted uses the driver default
// so that drivers without isolation support (sqlite) still work.
func (l IsolationLevel) txOptions() *sql.TxOptions {
	switch l {
	case RepeatableRead:
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case Serializable:
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		return nil
	}
}

// Manager opens transactions on a database
type Manager struct {
	db     *sql.DB
	logger *zap.Logger
	retry  *RetryConfig
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for rollbacks and retries
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRetryConfig overrides the retry behaviour of WithRetry
func WithRetryConfig(config *RetryConfig) Option {
	return func(m *Manager) {
		m.retry = config
	}
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		logger: zap.NewNop(),
		retry:  DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithTransaction executes fn within a transaction.
// It commits when fn succeeds and rolls back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return m.WithTransactionIsolation(ctx, ReadCommitted, fn)
}

// WithTransactionIsolation executes fn within a transaction with the given isolation level
func (m *Manager) WithTransactionIsolation(ctx context.Context, level IsolationLevel, fn func(tx *sql.Tx) error) error {
	if m.db == nil {
		return ErrNoDatabase
	}

	tx, err := m.db.BeginTx(ctx, level.txOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		m.logger.Debug("transaction rolled back", zap.String("isolation", level.String()), zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
