package queue

import (
	"time"

	"github.com/google/uuid"
	"github.com/trajectorie/inference-queue/internal/inference"
)

// Status represents the current lifecycle state of a task
type Status string

// Possible task status values
const (
	StatusQueued         Status = "queued"
	StatusProcessing     Status = "processing"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusRetryScheduled Status = "retry_scheduled"
	StatusCancelled      Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Priority determines dispatch order. Bands are strictly ordered:
// urgent > high > normal > low; submission order breaks ties within a band.
type Priority string

// Priority bands, highest first
const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// priorities lists all bands in dispatch order.
var priorities = [...]Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}

// rank maps a priority to its dispatch rank; lower ranks dispatch first.
func (p Priority) rank() int {
	for i, band := range priorities {
		if p == band {
			return i
		}
	}
	return len(priorities)
}

// Valid reports whether p names a known priority band.
func (p Priority) Valid() bool {
	return p.rank() < len(priorities)
}

// ParsePriority converts a string into a Priority.
// Returns ErrInvalidPriority for unknown bands.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", ErrInvalidPriority
	}
	return p, nil
}

// Callbacks holds optional per-task observer hooks registered at submission.
// Each hook is invoked at most once per relevant transition, synchronously
// from the engine loop, with panics isolated so a misbehaving observer cannot
// corrupt engine state.
type Callbacks struct {
	// OnTransition is called after every status change
	OnTransition func(Update)

	// OnComplete is called once when the task completes successfully
	OnComplete func(*inference.Result)

	// OnError is called once when the task fails terminally
	OnError func(error)
}

// Update is the snapshot delivered to observers on every status transition.
type Update struct {
	Status      Status
	Attempts    int
	MaxAttempts int
	Result      *inference.Result
	Err         error
}

// TaskInfo is a full read-only snapshot of a task record.
type TaskInfo struct {
	ID            uuid.UUID
	Operation     inference.Operation
	Priority      Priority
	Status        Status
	Attempts      int
	MaxAttempts   int
	Result        *inference.Result
	Err           error
	SubmittedAt   time.Time
	LastAttemptAt time.Time
}

// task is the engine-owned mutable record for one submitted unit of work.
// Only the engine goroutine reads or writes its fields after admission.
type task struct {
	id          uuid.UUID
	payload     inference.Request
	priority    Priority
	status      Status
	attempts    int
	maxAttempts int
	result      *inference.Result
	err         error

	submittedAt   time.Time
	lastAttemptAt time.Time

	callbacks   Callbacks
	subscribers []chan Update
}

// update builds the observer snapshot for the task's current state.
func (t *task) update() Update {
	return Update{
		Status:      t.status,
		Attempts:    t.attempts,
		MaxAttempts: t.maxAttempts,
		Result:      t.result,
		Err:         t.err,
	}
}

// info builds the full read-only snapshot of the task.
func (t *task) info() TaskInfo {
	return TaskInfo{
		ID:            t.id,
		Operation:     t.payload.Operation,
		Priority:      t.priority,
		Status:        t.status,
		Attempts:      t.attempts,
		MaxAttempts:   t.maxAttempts,
		Result:        t.result,
		Err:           t.err,
		SubmittedAt:   t.submittedAt,
		LastAttemptAt: t.lastAttemptAt,
	}
}
