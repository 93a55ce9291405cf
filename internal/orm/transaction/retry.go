package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wormsql/worm/internal/orm/storage"
)

const (
	// DefaultMaxRetries is the default number of attempts for deadlocked transactions
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 100 * time.Millisecond
)

// SQLSTATE codes worth retrying
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// WithRetry runs fn in a transaction, retrying the whole transaction with
// exponential backoff while it fails on a deadlock or serialization failure
func (m *Manager) WithRetry(ctx context.Context, level IsolationLevel, fn func(tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < m.retry.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before retry %d: %w", attempt, ctx.Err())
		}

		err := m.WithTransactionIsolation(ctx, level, fn)
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return err
		}

		lastErr = err
		backoff := m.retry.BaseBackoff * time.Duration(1<<uint(attempt))
		m.logger.Warn("retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: transaction failed after %d attempts: %v", ErrDeadlock, m.retry.MaxRetries, lastErr)
}

// IsRetryableError reports whether err is a deadlock or serialization failure.
// Driver error codes are preferred; the message is checked for drivers that do not expose one.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	switch storage.Code(err) {
	case codeDeadlockDetected, codeSerializationFailure:
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"deadlock detected", "could not serialize access", "database is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
