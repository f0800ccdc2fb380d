package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trajectorie/inference-queue/internal/inference"
)

// Engine defaults
const (
	defaultBound       = 3
	defaultMaxAttempts = 3
)

// Config holds configuration for the queue engine.
type Config struct {
	// Bound is the maximum number of concurrently in-flight inference calls
	Bound int

	// DefaultMaxAttempts is the attempt ceiling applied to submissions that
	// do not specify their own
	DefaultMaxAttempts int

	// Retry controls backoff scheduling for transient failures
	Retry RetryPolicy

	// SeedServiceTime seeds the estimator's rolling service-time average
	// before any completions have been observed
	SeedServiceTime time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Bound:              defaultBound,
		DefaultMaxAttempts: defaultMaxAttempts,
		Retry:              DefaultRetryPolicy(),
		SeedServiceTime:    defaultServiceTime,
	}
}

// Stats is a read-only snapshot of queue occupancy.
type Stats struct {
	// QueueSize counts tasks waiting for dispatch (queued or retry_scheduled)
	QueueSize int

	// Processing counts in-flight tasks
	Processing int

	// Completed counts completed tasks still present in the table
	Completed int

	// PriorityBreakdown counts waiting tasks per priority band
	PriorityBreakdown map[Priority]int
}

// Engine is the single authority over task admission, dispatch ordering,
// concurrency accounting and state transitions. All mutable state is owned
// by its run loop goroutine; public methods communicate with the loop over
// a command channel, so no locking of task state is needed.
type Engine struct {
	cfg     Config
	invoker inference.Invoker
	logger  *slog.Logger

	cmds    chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	loopWG  sync.WaitGroup
	execWG  sync.WaitGroup

	// now is a hook for deterministic timestamps in tests
	now func() time.Time

	// state below is only touched from the run loop
	tasks        map[uuid.UUID]*task
	index        *priorityIndex
	inFlight     int
	est          *estimator
	stopped      bool
	shutdownDone chan struct{}
}

// New creates a queue engine backed by the given inference invoker.
// Invalid config values are replaced with defaults.
func New(invoker inference.Invoker, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Bound <= 0 {
		logger.Warn("invalid concurrency bound specified, using default",
			"specified_bound", cfg.Bound,
			"default_bound", defaultBound)
		cfg.Bound = defaultBound
	}

	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = defaultMaxAttempts
	}

	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:     cfg,
		invoker: invoker,
		logger:  logger.With("component", "queue_engine"),
		cmds:    make(chan func(), 128),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
		tasks:   make(map[uuid.UUID]*task),
		index:   newPriorityIndex(),
		est:     newEstimator(cfg.SeedServiceTime),
	}
}

// Start launches the engine's run loop.
func (e *Engine) Start() error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("queue engine already started")
	}

	e.loopWG.Add(1)
	go e.run()

	e.logger.Info("queue engine started",
		"bound", e.cfg.Bound,
		"default_max_attempts", e.cfg.DefaultMaxAttempts)
	return nil
}

// Stop prevents further submissions and dispatches, waits for in-flight
// calls to settle (their outcomes are recorded for bookkeeping, observer
// notification is suppressed), then shuts down the run loop.
func (e *Engine) Stop() {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { e.beginShutdown(done) }:
		select {
		case <-done:
		case <-e.ctx.Done():
		}
	case <-e.ctx.Done():
	}

	e.cancel()
	e.loopWG.Wait()
	e.execWG.Wait()
}

// run is the engine's event loop. Every command is followed by a dispatch
// pass so freed slots are refilled immediately.
func (e *Engine) run() {
	defer e.loopWG.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case fn := <-e.cmds:
			fn()
			e.dispatch()
		}
	}
}

// call runs fn on the engine loop and waits for it to finish.
func (e *Engine) call(fn func()) error {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); close(done) }:
	case <-e.ctx.Done():
		return ErrEngineStopped
	}

	select {
	case <-done:
		return nil
	case <-e.ctx.Done():
		return ErrEngineStopped
	}
}

// post runs fn on the engine loop without waiting for it.
// Posts after shutdown are dropped.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.ctx.Done():
	}
}

// submitOptions holds the per-submission settings.
type submitOptions struct {
	priority    Priority
	maxAttempts int
	callbacks   Callbacks
}

// SubmitOption customizes a single submission.
type SubmitOption func(*submitOptions)

// WithPriority sets the task's priority band. Defaults to normal.
func WithPriority(p Priority) SubmitOption {
	return func(o *submitOptions) { o.priority = p }
}

// WithMaxAttempts sets the task's attempt ceiling.
// Defaults to the engine's DefaultMaxAttempts.
func WithMaxAttempts(n int) SubmitOption {
	return func(o *submitOptions) { o.maxAttempts = n }
}

// WithCallbacks registers observer hooks invoked on the task's transitions.
func WithCallbacks(cb Callbacks) SubmitOption {
	return func(o *submitOptions) { o.callbacks = cb }
}

// Submit validates the payload, inserts a new task record with status queued
// and returns its id. Malformed payloads fail fast before a record is
// created; execution failures are never returned here, they are recorded on
// the task and delivered via subscriptions and callbacks.
func (e *Engine) Submit(req inference.Request, opts ...SubmitOption) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("invalid payload: %w", err)
	}

	options := submitOptions{
		priority:    PriorityNormal,
		maxAttempts: e.cfg.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if !options.priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}
	if options.maxAttempts < 1 {
		options.maxAttempts = e.cfg.DefaultMaxAttempts
	}

	t := &task{
		id:          uuid.New(),
		payload:     req,
		priority:    options.priority,
		status:      StatusQueued,
		maxAttempts: options.maxAttempts,
		callbacks:   options.callbacks,
	}

	var submitErr error
	if err := e.call(func() {
		if e.stopped {
			submitErr = ErrEngineStopped
			return
		}
		t.submittedAt = e.now()
		e.tasks[t.id] = t
		e.index.push(t.priority, t.id)
		e.logger.Debug("task submitted",
			"task_id", t.id,
			"operation", t.payload.Operation,
			"priority", t.priority,
			"queue_len", e.index.len())
		e.notifyTransition(t)
	}); err != nil {
		return uuid.Nil, err
	}
	if submitErr != nil {
		return uuid.Nil, submitErr
	}

	return t.id, nil
}

// Cancel transitions the task to cancelled iff it is currently queued or
// retry_scheduled. In-flight work cannot be aborted; Cancel returns false
// for processing and terminal tasks and for unknown ids.
func (e *Engine) Cancel(id uuid.UUID) bool {
	var cancelled bool
	err := e.call(func() {
		t, ok := e.tasks[id]
		if !ok {
			return
		}

		switch t.status {
		case StatusQueued:
			e.index.remove(t.priority, t.id)
		case StatusRetryScheduled:
			// the pending requeue timer becomes a no-op
		default:
			return
		}

		t.status = StatusCancelled
		t.err = ErrTaskCancelled
		cancelled = true
		e.logger.Info("task cancelled", "task_id", t.id)
		e.notifyTransition(t)
	})
	if err != nil {
		return false
	}
	return cancelled
}

// Stats returns a snapshot of current queue occupancy.
func (e *Engine) Stats() Stats {
	stats := Stats{PriorityBreakdown: make(map[Priority]int)}
	if err := e.call(func() {
		for _, t := range e.tasks {
			switch t.status {
			case StatusQueued, StatusRetryScheduled:
				stats.QueueSize++
				stats.PriorityBreakdown[t.priority]++
			case StatusProcessing:
				stats.Processing++
			case StatusCompleted:
				stats.Completed++
			}
		}
	}); err != nil {
		return Stats{PriorityBreakdown: make(map[Priority]int)}
	}
	return stats
}

// EstimateWait returns the expected wait for a hypothetical new task at the
// given priority: the count of non-terminal tasks at equal-or-higher
// priority, spread over the concurrency bound, times the rolling average
// service time. Advisory only; it never influences dispatch.
func (e *Engine) EstimateWait(p Priority) (time.Duration, error) {
	if !p.Valid() {
		return 0, ErrInvalidPriority
	}

	var estimate time.Duration
	if err := e.call(func() {
		ahead := 0
		for _, t := range e.tasks {
			if t.status.Terminal() {
				continue
			}
			if t.priority.rank() <= p.rank() {
				ahead++
			}
		}
		estimate = e.est.estimate(ahead, e.cfg.Bound)
	}); err != nil {
		return 0, err
	}
	return estimate, nil
}

// ClearCompleted evicts all terminal records (completed, failed, cancelled)
// from the table. Pending and processing records are untouched. Idempotent.
func (e *Engine) ClearCompleted() {
	_ = e.call(func() {
		removed := 0
		for id, t := range e.tasks {
			if t.status.Terminal() {
				delete(e.tasks, id)
				removed++
			}
		}
		if removed > 0 {
			e.logger.Debug("cleared terminal tasks", "removed", removed)
		}
	})
}

// Snapshot returns a full read-only snapshot of one task record.
func (e *Engine) Snapshot(id uuid.UUID) (TaskInfo, error) {
	var info TaskInfo
	found := false
	if err := e.call(func() {
		if t, ok := e.tasks[id]; ok {
			info = t.info()
			found = true
		}
	}); err != nil {
		return TaskInfo{}, err
	}
	if !found {
		return TaskInfo{}, ErrTaskNotFound
	}
	return info, nil
}

// dispatch admits pending tasks while concurrency slots are free: highest
// priority first, FIFO within a band. Selection and the in-flight increment
// happen in one step on the loop, so no two dispatch decisions can both
// claim the last free slot.
func (e *Engine) dispatch() {
	if e.stopped {
		return
	}

	for e.inFlight < e.cfg.Bound {
		id, ok := e.index.pop()
		if !ok {
			return
		}

		t := e.tasks[id]
		e.inFlight++
		t.attempts++
		t.status = StatusProcessing
		t.lastAttemptAt = e.now()
		e.logger.Debug("task dispatched",
			"task_id", t.id,
			"attempt", t.attempts,
			"in_flight", e.inFlight)
		e.notifyTransition(t)
		e.execute(t)
	}
}

// execute invokes the collaborator in its own goroutine, the engine's only
// suspension point. The loop stays free to accept submissions and dispatch
// other tasks while the call is in flight.
func (e *Engine) execute(t *task) {
	e.execWG.Add(1)
	go func() {
		defer e.execWG.Done()
		started := time.Now()
		res, err := e.invoker.Invoke(e.ctx, t.payload)
		elapsed := time.Since(started)
		e.post(func() { e.settle(t, res, err, elapsed) })
	}()
}

// settle records the outcome of one execution attempt and frees its
// concurrency slot. The run loop performs a dispatch pass right after.
func (e *Engine) settle(t *task, res *inference.Result, err error, elapsed time.Duration) {
	e.inFlight--

	switch {
	case err == nil:
		t.status = StatusCompleted
		t.result = res
		t.err = nil
		e.est.observe(elapsed)
		e.logger.Info("task completed",
			"task_id", t.id,
			"attempts", t.attempts,
			"elapsed", elapsed)
		e.notifyTransition(t)
		e.notifyComplete(t)

	case inference.IsTransient(err) && t.attempts < t.maxAttempts:
		t.status = StatusRetryScheduled
		t.err = err
		delay := e.cfg.Retry.NextDelay(t.attempts)
		e.logger.Warn("task failed transiently, retry scheduled",
			"task_id", t.id,
			"attempt", t.attempts,
			"max_attempts", t.maxAttempts,
			"delay", delay,
			"error", err)
		e.notifyTransition(t)
		e.scheduleRequeue(t.id, delay)

	default:
		t.status = StatusFailed
		t.err = err
		e.logger.Error("task failed",
			"task_id", t.id,
			"attempts", t.attempts,
			"error", err)
		e.notifyTransition(t)
		e.notifyError(t)
	}

	e.maybeFinishShutdown()
}

// scheduleRequeue re-enters the task into the pending pool after the backoff
// delay elapses.
func (e *Engine) scheduleRequeue(id uuid.UUID, delay time.Duration) {
	time.AfterFunc(delay, func() {
		e.post(func() { e.requeue(id) })
	})
}

// requeue moves a retry-scheduled task back to queued. No-op if the task was
// cancelled in the meantime or the engine is stopping.
func (e *Engine) requeue(id uuid.UUID) {
	if e.stopped {
		return
	}

	t, ok := e.tasks[id]
	if !ok || t.status != StatusRetryScheduled {
		return
	}

	t.status = StatusQueued
	e.index.push(t.priority, t.id)
	e.logger.Debug("task requeued after backoff", "task_id", t.id, "attempt", t.attempts)
	e.notifyTransition(t)
}

// beginShutdown marks the engine stopped and arranges for done to close once
// all in-flight calls have settled.
func (e *Engine) beginShutdown(done chan struct{}) {
	if e.stopped {
		close(done)
		return
	}

	e.stopped = true
	e.shutdownDone = done
	e.logger.Info("queue engine stopping",
		"in_flight", e.inFlight,
		"pending", e.index.len())
	e.maybeFinishShutdown()
}

func (e *Engine) maybeFinishShutdown() {
	if e.stopped && e.inFlight == 0 && e.shutdownDone != nil {
		close(e.shutdownDone)
		e.shutdownDone = nil
	}
}
