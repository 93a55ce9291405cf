package schema

import "errors"

var (
	// ErrInvalidSchema is returned when an entity descriptor is malformed
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrDuplicateSchema is returned when a table is registered twice
	ErrDuplicateSchema = errors.New("schema already registered")

	// ErrUnknownEntity is returned when a table has not been registered
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrInfiniteSchemaLoop is returned when the relationship graph contains a cycle
	ErrInfiniteSchemaLoop = errors.New("infinite schema loop")

	// ErrRegistryClosed is returned when a closed registry is used
	ErrRegistryClosed = errors.New("registry closed")
)
