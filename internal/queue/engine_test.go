package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trajectorie/inference-queue/internal/inference"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// fastRetryConfig keeps backoff delays negligible so retry tests run quickly.
func fastRetryConfig(bound int) Config {
	return Config{
		Bound:              bound,
		DefaultMaxAttempts: 3,
		Retry: RetryPolicy{
			BaseDelay: time.Millisecond,
			MaxDelay:  4 * time.Millisecond,
		},
		SeedServiceTime: 10 * time.Second,
	}
}

func newTestEngine(t *testing.T, invoker inference.Invoker, cfg Config) *Engine {
	t.Helper()
	e := New(invoker, cfg, setupTestLogger())
	require.NoError(t, e.Start())
	t.Cleanup(e.Stop)
	return e
}

func analysisRequest(input string) inference.Request {
	return inference.Request{Operation: inference.OperationTextAnalysis, Input: input}
}

// blockingInvoker parks every call until the test releases it, recording the
// order in which calls started.
type blockingInvoker struct {
	mu       sync.Mutex
	started  []string
	release  chan struct{}
	shutOnce sync.Once
}

func newBlockingInvoker() *blockingInvoker {
	return &blockingInvoker{release: make(chan struct{})}
}

func (b *blockingInvoker) Invoke(ctx context.Context, req inference.Request) (*inference.Result, error) {
	b.mu.Lock()
	b.started = append(b.started, req.Input)
	b.mu.Unlock()

	<-b.release
	return &inference.Result{Text: "ok:" + req.Input}, nil
}

// releaseOne lets exactly one parked call finish.
func (b *blockingInvoker) releaseOne() {
	b.release <- struct{}{}
}

// releaseAll unparks every current and future call.
func (b *blockingInvoker) releaseAll() {
	b.shutOnce.Do(func() { close(b.release) })
}

func (b *blockingInvoker) startedInputs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.started))
	copy(out, b.started)
	return out
}

func (b *blockingInvoker) startedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.started)
}

// scriptedInvoker fails a fixed number of times with the given error, then
// succeeds.
type scriptedInvoker struct {
	mu       sync.Mutex
	failures int
	failWith error
	calls    int
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req inference.Request) (*inference.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return nil, s.failWith
	}
	return &inference.Result{Text: "ok:" + req.Input}, nil
}

func (s *scriptedInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// transitionRecorder captures OnTransition updates for later assertions.
type transitionRecorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *transitionRecorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *transitionRecorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Status
	}
	return out
}

func (r *transitionRecorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Update, len(r.updates))
	copy(out, r.updates)
	return out
}

func taskStatus(e *Engine, id uuid.UUID) Status {
	info, err := e.Snapshot(id)
	if err != nil {
		return ""
	}
	return info.Status
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEngine(t, newBlockingInvoker(), fastRetryConfig(1))

	// empty input fails fast, no record created
	id, err := e.Submit(inference.Request{Operation: inference.OperationTextAnalysis})
	assert.Error(t, err)
	assert.ErrorIs(t, err, inference.ErrEmptyInput)
	assert.Equal(t, uuid.Nil, id)

	// translation without a target language is rejected
	_, err = e.Submit(inference.Request{
		Operation: inference.OperationTranslation,
		Input:     "bonjour",
	})
	assert.ErrorIs(t, err, inference.ErrMissingTargetLanguage)

	// unknown operation is rejected
	_, err = e.Submit(inference.Request{Operation: "summarization", Input: "x"})
	assert.ErrorIs(t, err, inference.ErrUnknownOperation)

	stats := e.Stats()
	assert.Equal(t, 0, stats.QueueSize)
	assert.Equal(t, 0, stats.Processing)
}

func TestSubmitDefaults(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(1))

	// occupy the only slot so the task under test stays queued
	_, err := e.Submit(analysisRequest("blocker"))
	require.NoError(t, err)

	id, err := e.Submit(analysisRequest("defaults"))
	require.NoError(t, err)

	info, err := e.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, info.Priority)
	assert.Equal(t, 3, info.MaxAttempts)
	assert.Equal(t, StatusQueued, info.Status)
	assert.Equal(t, 0, info.Attempts)
	assert.False(t, info.SubmittedAt.IsZero())
}

func TestSubmitAfterStop(t *testing.T) {
	e := New(newBlockingInvoker(), fastRetryConfig(1), setupTestLogger())
	require.NoError(t, e.Start())
	e.Stop()

	_, err := e.Submit(analysisRequest("too late"))
	assert.ErrorIs(t, err, ErrEngineStopped)
}

// Scenario A: with bound=3, exactly 3 of 5 tasks process immediately; when
// one completes, the next queued task is dispatched.
func TestDispatchRespectsBound(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(3))

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		id, err := e.Submit(analysisRequest(fmt.Sprintf("task-%d", i)))
		require.NoError(t, err)
		ids[i] = id
	}

	stats := e.Stats()
	assert.Equal(t, 3, stats.Processing)
	assert.Equal(t, 2, stats.QueueSize)
	assert.Eventually(t, func() bool {
		return inv.startedCount() == 3
	}, waitFor, tick)

	// queue size + processing covers every non-terminal task
	assert.Equal(t, 5, stats.QueueSize+stats.Processing)

	// completing one frees a slot for the next queued task
	inv.releaseOne()
	assert.Eventually(t, func() bool {
		s := e.Stats()
		return s.Processing == 3 && s.QueueSize == 1 && s.Completed == 1
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		return inv.startedCount() == 4
	}, waitFor, tick)

	inv.releaseAll()
	assert.Eventually(t, func() bool {
		return e.Stats().Completed == 5
	}, waitFor, tick)
}

// Scenario C plus the FIFO property: an urgent task submitted while the
// queue is saturated dispatches before earlier normal-priority tasks, and
// equal-priority tasks keep submission order.
func TestPriorityDispatchOrder(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(1))

	_, err := e.Submit(analysisRequest("blocker"))
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		_, err := e.Submit(analysisRequest(fmt.Sprintf("normal-%d", i)))
		require.NoError(t, err)
	}
	_, err = e.Submit(analysisRequest("urgent-1"), WithPriority(PriorityUrgent))
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		inv.releaseOne()
	}

	assert.Eventually(t, func() bool {
		return e.Stats().Completed == 6
	}, waitFor, tick)

	assert.Equal(t,
		[]string{"blocker", "urgent-1", "normal-1", "normal-2", "normal-3", "normal-4"},
		inv.startedInputs())
}

// Scenario B: a task that always fails transiently walks
// queued→processing→retry_scheduled three times and ends failed with
// attempts exhausted.
func TestRetryLifecycle(t *testing.T) {
	inv := &scriptedInvoker{
		failures: 100, // never succeeds
		failWith: fmt.Errorf("%w: 429", inference.ErrRateLimited),
	}
	e := newTestEngine(t, inv, fastRetryConfig(1))

	rec := &transitionRecorder{}
	var errOnce sync.Mutex
	var terminalErr error

	id, err := e.Submit(analysisRequest("doomed"),
		WithMaxAttempts(3),
		WithCallbacks(Callbacks{
			OnTransition: rec.record,
			OnError: func(err error) {
				errOnce.Lock()
				terminalErr = err
				errOnce.Unlock()
			},
		}))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return taskStatus(e, id) == StatusFailed
	}, waitFor, tick)

	info, err := e.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Attempts)
	assert.Nil(t, info.Result)
	assert.ErrorIs(t, info.Err, inference.ErrRateLimited)

	assert.Equal(t, []Status{
		StatusQueued,
		StatusProcessing, StatusRetryScheduled, StatusQueued,
		StatusProcessing, StatusRetryScheduled, StatusQueued,
		StatusProcessing, StatusFailed,
	}, rec.statuses())

	// attempts never exceed the ceiling at any observed point
	for _, u := range rec.all() {
		assert.LessOrEqual(t, u.Attempts, u.MaxAttempts)
	}

	errOnce.Lock()
	defer errOnce.Unlock()
	assert.ErrorIs(t, terminalErr, inference.ErrRateLimited)
}

func TestPermanentFailureNoRetry(t *testing.T) {
	inv := &scriptedInvoker{
		failures: 100,
		failWith: fmt.Errorf("%w: bad payload", inference.ErrInvalidRequest),
	}
	e := newTestEngine(t, inv, fastRetryConfig(1))

	id, err := e.Submit(analysisRequest("malformed"), WithMaxAttempts(5))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return taskStatus(e, id) == StatusFailed
	}, waitFor, tick)

	info, err := e.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Attempts, "permanent failures must not be retried")
	assert.Equal(t, 1, inv.callCount())
}

func TestRetryThenSuccess(t *testing.T) {
	inv := &scriptedInvoker{
		failures: 2,
		failWith: fmt.Errorf("%w: overloaded", inference.ErrUnavailable),
	}
	e := newTestEngine(t, inv, fastRetryConfig(1))

	var mu sync.Mutex
	completions := 0

	id, err := e.Submit(analysisRequest("eventually fine"),
		WithCallbacks(Callbacks{
			OnComplete: func(res *inference.Result) {
				mu.Lock()
				completions++
				mu.Unlock()
			},
		}))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return taskStatus(e, id) == StatusCompleted
	}, waitFor, tick)

	info, err := e.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Attempts)
	require.NotNil(t, info.Result)
	assert.Equal(t, "ok:eventually fine", info.Result.Text)
	assert.Nil(t, info.Err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, completions)
}

// Scenario D: cancelling a queued task succeeds and excludes it from
// dispatch; cancel is a strict no-op for processing and terminal tasks.
func TestCancelQueued(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(1))

	blockerID, err := e.Submit(analysisRequest("blocker"))
	require.NoError(t, err)
	victimID, err := e.Submit(analysisRequest("victim"))
	require.NoError(t, err)

	assert.True(t, e.Cancel(victimID))

	info, err := e.Snapshot(victimID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, info.Status)
	assert.ErrorIs(t, info.Err, ErrTaskCancelled)

	// cancelled tasks are not dispatched, and cancel is not repeatable
	assert.False(t, e.Cancel(victimID))

	inv.releaseAll()
	assert.Eventually(t, func() bool {
		return taskStatus(e, blockerID) == StatusCompleted
	}, waitFor, tick)
	assert.Equal(t, []string{"blocker"}, inv.startedInputs())
}

func TestCancelProcessingReturnsFalse(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(1))

	id, err := e.Submit(analysisRequest("in flight"))
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, taskStatus(e, id))

	assert.False(t, e.Cancel(id))
	assert.Equal(t, StatusProcessing, taskStatus(e, id))

	inv.releaseAll()
	assert.Eventually(t, func() bool {
		return taskStatus(e, id) == StatusCompleted
	}, waitFor, tick)

	// terminal tasks cannot be cancelled either
	assert.False(t, e.Cancel(id))
	assert.Equal(t, StatusCompleted, taskStatus(e, id))

	// unknown ids are a no-op
	assert.False(t, e.Cancel(uuid.New()))
}

func TestCancelRetryScheduled(t *testing.T) {
	inv := &scriptedInvoker{
		failures: 100,
		failWith: fmt.Errorf("%w: 429", inference.ErrRateLimited),
	}
	cfg := fastRetryConfig(1)
	cfg.Retry = RetryPolicy{BaseDelay: 250 * time.Millisecond, MaxDelay: time.Second}
	e := newTestEngine(t, inv, cfg)

	id, err := e.Submit(analysisRequest("flaky"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return taskStatus(e, id) == StatusRetryScheduled
	}, waitFor, tick)

	assert.True(t, e.Cancel(id))
	assert.Equal(t, StatusCancelled, taskStatus(e, id))

	// the pending backoff timer must not resurrect the task
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, StatusCancelled, taskStatus(e, id))
	assert.Equal(t, 1, inv.callCount())
}

func TestClearCompletedIdempotent(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(1))

	doneID, err := e.Submit(analysisRequest("done"))
	require.NoError(t, err)
	inv.releaseOne()
	assert.Eventually(t, func() bool {
		return taskStatus(e, doneID) == StatusCompleted
	}, waitFor, tick)

	// occupies the only slot, keeping the next submission queued
	inFlightID, err := e.Submit(analysisRequest("in flight"))
	require.NoError(t, err)
	cancelledID, err := e.Submit(analysisRequest("cancelled"))
	require.NoError(t, err)
	require.True(t, e.Cancel(cancelledID))

	e.ClearCompleted()

	_, err = e.Snapshot(doneID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = e.Snapshot(cancelledID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// processing records are untouched
	info, err := e.Snapshot(inFlightID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, info.Status)

	// second sweep changes nothing
	e.ClearCompleted()
	info, err = e.Snapshot(inFlightID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, info.Status)
}

func TestSubscribeDeliversTransitionsInOrder(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(1))

	_, err := e.Submit(analysisRequest("blocker"))
	require.NoError(t, err)

	id, err := e.Submit(analysisRequest("watched"))
	require.NoError(t, err)

	updates, err := e.Subscribe(id)
	require.NoError(t, err)

	inv.releaseAll()

	var got []Update
	for u := range updates {
		got = append(got, u)
	}

	statuses := make([]Status, len(got))
	for i, u := range got {
		statuses[i] = u.Status
	}
	assert.Equal(t, []Status{StatusQueued, StatusProcessing, StatusCompleted}, statuses)

	final := got[len(got)-1]
	require.NotNil(t, final.Result)
	assert.Equal(t, "ok:watched", final.Result.Text)
}

func TestSubscribeTerminalTask(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(1))

	id, err := e.Submit(analysisRequest("quick"))
	require.NoError(t, err)
	inv.releaseOne()
	assert.Eventually(t, func() bool {
		return taskStatus(e, id) == StatusCompleted
	}, waitFor, tick)

	updates, err := e.Subscribe(id)
	require.NoError(t, err)

	u, open := <-updates
	assert.True(t, open)
	assert.Equal(t, StatusCompleted, u.Status)

	_, open = <-updates
	assert.False(t, open, "channel must close after the terminal update")
}

func TestSubscribeUnknownTask(t *testing.T) {
	e := newTestEngine(t, newBlockingInvoker(), fastRetryConfig(1))

	_, err := e.Subscribe(uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCallbackPanicIsolation(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(1))

	panicID, err := e.Submit(analysisRequest("panicky"),
		WithCallbacks(Callbacks{
			OnTransition: func(Update) { panic("observer bug") },
		}))
	require.NoError(t, err)

	quietID, err := e.Submit(analysisRequest("quiet"))
	require.NoError(t, err)

	inv.releaseAll()

	assert.Eventually(t, func() bool {
		return taskStatus(e, panicID) == StatusCompleted &&
			taskStatus(e, quietID) == StatusCompleted
	}, waitFor, tick)
}

// Scenario E plus monotonicity: urgent estimates never exceed low estimates
// under identical occupancy, and estimates do not shrink as occupancy grows.
func TestEstimateWait(t *testing.T) {
	inv := newBlockingInvoker()
	defer inv.releaseAll()
	e := newTestEngine(t, inv, fastRetryConfig(2))

	// empty queue estimates zero wait
	empty, err := e.EstimateWait(PriorityLow)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), empty)

	for i := 0; i < 4; i++ {
		_, err := e.Submit(analysisRequest(fmt.Sprintf("filler-%d", i)))
		require.NoError(t, err)
	}

	urgent, err := e.EstimateWait(PriorityUrgent)
	require.NoError(t, err)
	low, err := e.EstimateWait(PriorityLow)
	require.NoError(t, err)
	assert.LessOrEqual(t, urgent, low)
	assert.Greater(t, low, time.Duration(0))

	// more occupancy never lowers the estimate
	for i := 0; i < 4; i++ {
		_, err := e.Submit(analysisRequest(fmt.Sprintf("more-%d", i)))
		require.NoError(t, err)
	}
	lowAfter, err := e.EstimateWait(PriorityLow)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lowAfter, low)

	_, err = e.EstimateWait(Priority("frantic"))
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestStatsInvariantAcrossLifecycle(t *testing.T) {
	inv := &scriptedInvoker{
		failures: 1,
		failWith: fmt.Errorf("%w: blip", inference.ErrUnavailable),
	}
	e := newTestEngine(t, inv, fastRetryConfig(1))

	id, err := e.Submit(analysisRequest("tracked"))
	require.NoError(t, err)

	// at every observable point, queue size + processing equals the number
	// of non-terminal tasks (here: 1 until the task completes)
	assert.Eventually(t, func() bool {
		return taskStatus(e, id) == StatusCompleted
	}, waitFor, tick)

	stats := e.Stats()
	assert.Equal(t, 0, stats.QueueSize)
	assert.Equal(t, 0, stats.Processing)
	assert.Equal(t, 1, stats.Completed)
}
