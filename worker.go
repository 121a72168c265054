package gwpool

// workerState is a step of the worker loop.
type workerState uint8

const (
	stateAwait workerState = iota
	statePrepare
	stateProcess
	stateRetry
	stateFinish
	stateAbort
	stateExit
)

func (s workerState) String() string {
	switch s {
	case stateAwait:
		return "await"
	case statePrepare:
		return "prepare"
	case stateProcess:
		return "process"
	case stateRetry:
		return "retry"
	case stateFinish:
		return "finish"
	case stateAbort:
		return "abort"
	case stateExit:
		return "exit"
	default:
		return "unknown"
	}
}

// retryTransition decides what follows a retry request. This is the point
// where shutdown cuts an in-place retry loop short.
func retryTransition(running bool) workerState {
	if !running {
		return stateAbort
	}
	return stateProcess
}

// worker owns at most one item at a time, held, between taking it from the
// pending queue and handing it to the finished queue or aborting it.
type worker struct {
	pool *ThreadPool
	id   int

	held  Item
	retry bool
}

func (w *worker) run() {
	w.pool.live.Add(1)
	defer w.pool.live.Add(-1)
	// Runs on a normal exit and when an item panics: whatever is still held
	// goes to the finished queue so the controlling goroutine accounts for it.
	defer w.release()

	state := stateAwait
	for state != stateExit {
		state = w.step(state)
	}
}

func (w *worker) step(state workerState) workerState {
	p := w.pool
	switch state {
	case stateAwait:
		if !p.running.Load() {
			return stateExit
		}
		w.held = p.pending.pop()
		if w.held == nil {
			// poison, the next pass sees the pool stopped
			return stateAwait
		}
		return statePrepare

	case statePrepare:
		if !p.running.Load() {
			w.retry = false
			return stateAbort
		}
		if !w.held.Prepare() {
			p.metrics.incPrepareFailures()
			return stateFinish
		}
		return stateProcess

	case stateProcess:
		if w.held.Process() {
			return stateRetry
		}
		return stateFinish

	case stateRetry:
		p.metrics.incRetries()
		next := retryTransition(p.running.Load())
		w.retry = next == stateAbort
		return next

	case stateFinish:
		p.finished.Enqueue(w.held)
		w.held = nil
		return stateAwait

	case stateAbort:
		w.held.OnAborted(w.retry)
		p.metrics.incAborted()
		w.held = nil
		w.retry = false
		return stateExit
	}
	return stateExit
}

func (w *worker) release() {
	if w.held != nil {
		w.pool.finished.Enqueue(w.held)
		w.held = nil
	}
}
