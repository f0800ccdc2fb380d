package queue

import "github.com/google/uuid"

// Subscribe returns a channel that delivers an Update for the task's current
// state and every subsequent transition, in transition order. The channel is
// closed after the terminal update.
//
// The channel is buffered for the task's bounded transition count, so the
// engine never blocks on a slow observer. Should a send still not fit, the
// update is dropped and logged rather than stalling other tasks.
func (e *Engine) Subscribe(id uuid.UUID) (<-chan Update, error) {
	var ch chan Update
	var subErr error
	if err := e.call(func() {
		t, ok := e.tasks[id]
		if !ok {
			subErr = ErrTaskNotFound
			return
		}

		// each attempt contributes at most three transitions
		// (processing, retry_scheduled, queued), plus the initial
		// queued state and the terminal one
		ch = make(chan Update, 3*t.maxAttempts+4)
		ch <- t.update()
		if t.status.Terminal() {
			close(ch)
			return
		}
		t.subscribers = append(t.subscribers, ch)
	}); err != nil {
		return nil, err
	}
	if subErr != nil {
		return nil, subErr
	}
	return ch, nil
}

// notifyTransition delivers the task's current state to its subscribers and
// transition callback. Notification is suppressed once the engine is
// stopping; outcomes are still recorded on the task for bookkeeping.
func (e *Engine) notifyTransition(t *task) {
	if e.stopped {
		return
	}

	u := t.update()
	for _, ch := range t.subscribers {
		select {
		case ch <- u:
		default:
			e.logger.Warn("dropping update for slow subscriber",
				"task_id", t.id,
				"status", u.Status)
		}
	}

	if t.status.Terminal() {
		for _, ch := range t.subscribers {
			close(ch)
		}
		t.subscribers = nil
	}

	if t.callbacks.OnTransition != nil {
		e.invokeCallback(t, "on_transition", func() { t.callbacks.OnTransition(u) })
	}
}

// notifyComplete invokes the task's completion hook.
func (e *Engine) notifyComplete(t *task) {
	if e.stopped || t.callbacks.OnComplete == nil {
		return
	}
	e.invokeCallback(t, "on_complete", func() { t.callbacks.OnComplete(t.result) })
}

// notifyError invokes the task's terminal failure hook.
func (e *Engine) notifyError(t *task) {
	if e.stopped || t.callbacks.OnError == nil {
		return
	}
	e.invokeCallback(t, "on_error", func() { t.callbacks.OnError(t.err) })
}

// invokeCallback runs an observer hook with panic isolation so one
// misbehaving observer cannot corrupt engine state or block other tasks.
func (e *Engine) invokeCallback(t *task, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task callback panicked",
				"task_id", t.id,
				"callback", name,
				"panic", r)
		}
	}()
	fn()
}
