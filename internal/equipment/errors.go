package equipment

import "errors"

var (
	// ErrCommandFailed is returned when the host reports a failed command.
	ErrCommandFailed = errors.New("equipment: command failed")

	// ErrCommandTimeout is returned when no result arrives within the
	// configured command timeout.
	ErrCommandTimeout = errors.New("equipment: command timed out")

	// ErrNotStarted is returned by BusCommander.Execute before Start.
	ErrNotStarted = errors.New("equipment: commander not started")
)
