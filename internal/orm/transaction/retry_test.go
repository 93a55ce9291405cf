package transaction

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wormsql/worm/internal/orm/storage"
)

func fastRetries(n int) Option {
	return WithRetryConfig(&RetryConfig{MaxRetries: n, BaseBackoff: time.Millisecond})
}

func TestWithRetryRecoversFromDeadlock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	core, logs := observer.New(zap.WarnLevel)
	mgr := NewManager(db, fastRetries(3), WithLogger(zap.New(core)))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE account SET balance=$2 WHERE id=$1").
		WithArgs(1, 10).
		WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE account SET balance=$2 WHERE id=$1").
		WithArgs(1, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := storage.NewSQLStore()
	attempts := 0
	err = mgr.WithRetry(context.Background(), ReadCommitted, func(tx *sql.Tx) error {
		attempts++
		_, err := store.Update(context.Background(), tx, "account", []storage.Column{{Name: "id", Value: 1}, {Name: "balance", Value: 10}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, logs.FilterMessage("retrying transaction").Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryGivesUp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewManager(db, fastRetries(2))
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err = mgr.WithRetry(context.Background(), ReadCommitted, func(tx *sql.Tx) error {
		return &pq.Error{Code: "40001"}
	})
	assert.ErrorIs(t, err, ErrDeadlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewManager(db, fastRetries(3))
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	attempts := 0
	err = mgr.WithRetry(context.Background(), ReadCommitted, func(tx *sql.Tx) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewManager(nil).WithRetry(ctx, ReadCommitted, func(tx *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsRetryableError(&storage.Error{Op: "update", Table: "t", Err: &pq.Error{Code: "40001"}}))
	assert.True(t, IsRetryableError(errors.New("database is locked")))
	assert.False(t, IsRetryableError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryableError(nil))
}
