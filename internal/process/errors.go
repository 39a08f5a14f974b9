package process

import "errors"

var (
	// ErrUnknownType is returned when a type name is not in the catalog.
	ErrUnknownType = errors.New("process: unknown process type")

	// ErrWorkPanicked wraps a panic recovered from a unit of work.
	ErrWorkPanicked = errors.New("process: work panicked")
)
