package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wormsql/worm/internal/orm/transaction"
)

// ErrIrreversible is returned when rolling back a migration that has no down SQL
var ErrIrreversible = errors.New("migration has no down SQL")

// Runner executes migrations, each in its own transaction
type Runner struct {
	tracker *Tracker
	tx      *transaction.Manager
	logger  *zap.Logger
}

// NewRunner creates a new migration runner
func NewRunner(db *sql.DB, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		tracker: NewTracker(db),
		tx:      transaction.NewManager(db, transaction.WithLogger(logger)),
		logger:  logger,
	}
}

// Up applies every pending migration in version order and returns the ones applied.
// It stops at the first failure; earlier migrations stay applied.
func (r *Runner) Up(ctx context.Context, migrations []*Migration) ([]*Migration, error) {
	if err := r.tracker.Initialize(ctx); err != nil {
		return nil, err
	}

	pending, err := r.tracker.Pending(ctx, migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	var applied []*Migration
	for _, m := range pending {
		start := time.Now()
		err := r.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
			return r.tracker.Record(ctx, tx, m)
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d_%s failed: %w", m.Version, m.Name, err)
		}

		r.logger.Info("applied migration",
			zap.Int64("version", m.Version),
			zap.String("name", m.Name),
			zap.Duration("duration", time.Since(start)))
		applied = append(applied, m)
	}
	return applied, nil
}

// Down rolls back the last steps applied migrations, newest first, using the
// down SQL recorded when each was applied
func (r *Runner) Down(ctx context.Context, steps int) ([]*Migration, error) {
	if err := r.tracker.Initialize(ctx); err != nil {
		return nil, err
	}

	applied, err := r.tracker.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var rolledBack []*Migration
	for i := len(applied) - 1; i >= 0 && len(rolledBack) < steps; i-- {
		m := applied[i]
		if m.Down == "" {
			return rolledBack, fmt.Errorf("%w: %d_%s", ErrIrreversible, m.Version, m.Name)
		}

		err := r.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Down); err != nil {
				return fmt.Errorf("failed to execute rollback SQL: %w", err)
			}
			return r.tracker.Remove(ctx, tx, m.Version)
		})
		if err != nil {
			return rolledBack, fmt.Errorf("rollback of %d_%s failed: %w", m.Version, m.Name, err)
		}

		r.logger.Info("rolled back migration", zap.Int64("version", m.Version), zap.String("name", m.Name))
		rolledBack = append(rolledBack, m)
	}
	return rolledBack, nil
}

// Status compares the migration files against the database
func (r *Runner) Status(ctx context.Context, all []*Migration) (*Status, error) {
	if err := r.tracker.Initialize(ctx); err != nil {
		return nil, err
	}

	applied, err := r.tracker.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	pending, err := r.tracker.Pending(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	return &Status{Total: len(all), Applied: applied, Pending: pending}, nil
}

// Status represents the current state of migrations
type Status struct {
	Total   int
	Applied []*Migration
	Pending []*Migration
}

// LastApplied returns the newest applied migration, or nil
func (s *Status) LastApplied() *Migration {
	if len(s.Applied) == 0 {
		return nil
	}
	return s.Applied[len(s.Applied)-1]
}

// Summary returns a human-readable summary
func (s *Status) Summary() string {
	return fmt.Sprintf("Total: %d migrations (%d applied, %d pending)",
		s.Total,
		len(s.Applied),
		len(s.Pending))
}
