package query

import "errors"

var (
	// ErrPlaceholderOutOfRange is returned when a fragment references a parameter it was not given
	ErrPlaceholderOutOfRange = errors.New("placeholder out of range")

	// ErrNoRunner is returned by terminal methods of a builder created with New
	ErrNoRunner = errors.New("query builder has no runner")
)
