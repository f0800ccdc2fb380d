package queue

import "errors"

// Common errors returned by the queue engine
var (
	// ErrEngineStopped is returned when an operation is attempted on a
	// stopped engine
	ErrEngineStopped = errors.New("queue engine is stopped")

	// ErrTaskNotFound is returned when the given task id is not in the
	// engine's table
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskCancelled is recorded as the error of a task cancelled before
	// dispatch
	ErrTaskCancelled = errors.New("task cancelled before dispatch")

	// ErrInvalidPriority is returned for an unknown priority band
	ErrInvalidPriority = errors.New("invalid priority")
)
