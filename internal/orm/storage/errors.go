package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrStorageFailure matches every error returned by a Store
	ErrStorageFailure = errors.New("storage failure")

	// ErrMissingKey is returned when an update has no id column
	ErrMissingKey = errors.New("update requires an id column")
)

// SQLSTATE codes of the constraint violations callers usually care about
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
)

// Error is a failed storage operation. The driver error stays reachable through errors.As.
type Error struct {
	Op    string
	Table string
	Err   error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying driver error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrStorageFailure
func (e *Error) Is(target error) bool {
	return target == ErrStorageFailure
}

func wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Table: table, Err: err}
}

// Code returns the SQLSTATE of a pgx or lib/pq error, or "" for other errors
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsUniqueViolation returns true if the error is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return Code(err) == codeUniqueViolation
}

// IsForeignKeyViolation returns true if the error is a foreign key constraint violation
func IsForeignKeyViolation(err error) bool {
	return Code(err) == codeForeignKeyViolation
}

// IsNotNullViolation returns true if the error is a NOT NULL constraint violation
func IsNotNullViolation(err error) bool {
	return Code(err) == codeNotNullViolation
}

// IsCheckViolation returns true if the error is a check constraint violation
func IsCheckViolation(err error) bool {
	return Code(err) == codeCheckViolation
}
