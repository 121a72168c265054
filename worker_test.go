package gwpool

import "testing"

func TestRetryTransition(t *testing.T) {
	if got := retryTransition(true); got != stateProcess {
		t.Errorf("retryTransition(running) = %v, want %v", got, stateProcess)
	}
	if got := retryTransition(false); got != stateAbort {
		t.Errorf("retryTransition(stopped) = %v, want %v", got, stateAbort)
	}
}

func TestWorkerStep(t *testing.T) {
	tests := []struct {
		name      string
		running   bool
		state     workerState
		item      *countingItem
		want      workerState
		wantRetry bool
	}{
		{"Prepare ok", true, statePrepare, &countingItem{}, stateProcess, false},
		{"Prepare fails", true, statePrepare, &countingItem{failPrep: true}, stateFinish, false},
		{"Prepare while stopped", false, statePrepare, &countingItem{}, stateAbort, false},
		{"Process done", true, stateProcess, &countingItem{}, stateFinish, false},
		{"Process retry", true, stateProcess, &countingItem{retries: 1}, stateRetry, false},
		{"Retry while running", true, stateRetry, &countingItem{}, stateProcess, false},
		{"Retry while stopped", false, stateRetry, &countingItem{}, stateAbort, true},
		{"Await while stopped", false, stateAwait, nil, stateExit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewThreadPool()
			pool.running.Store(tt.running)
			w := &worker{pool: pool}
			if tt.item != nil {
				w.held = tt.item
			}

			if got := w.step(tt.state); got != tt.want {
				t.Errorf("step(%v) = %v, want %v", tt.state, got, tt.want)
			}
			if w.retry != tt.wantRetry {
				t.Errorf("retry flag = %v, want %v", w.retry, tt.wantRetry)
			}
		})
	}
}

func TestWorkerAbortAndFinish(t *testing.T) {
	pool := NewThreadPool()

	t.Run("Abort", func(t *testing.T) {
		item := &countingItem{}
		w := &worker{pool: pool, held: item, retry: true}

		if got := w.step(stateAbort); got != stateExit {
			t.Errorf("step(abort) = %v, want exit", got)
		}
		if item.aborts.Load() != 1 || !item.abortRetry.Load() {
			t.Errorf("Expected OnAborted(true), got aborted=%d retry=%v", item.aborts.Load(), item.abortRetry.Load())
		}
		if w.held != nil {
			t.Error("aborted item should be released by the worker")
		}
		if pool.Finished() != 0 {
			t.Error("aborted item must not reach the finished queue")
		}
	})

	t.Run("Finish", func(t *testing.T) {
		item := &countingItem{}
		w := &worker{pool: pool, held: item}

		if got := w.step(stateFinish); got != stateAwait {
			t.Errorf("step(finish) = %v, want await", got)
		}
		if w.held != nil {
			t.Error("finished item should leave the worker")
		}
		if got, ok := pool.finished.Dequeue(); !ok || got != item {
			t.Errorf("finished queue should hold the item, got %v %v", got, ok)
		}
	})

	t.Run("ReleaseHeld", func(t *testing.T) {
		item := &countingItem{}
		w := &worker{pool: pool, held: item}
		w.release()

		if got, ok := pool.finished.Dequeue(); !ok || got != item {
			t.Errorf("release should push the held item, got %v %v", got, ok)
		}
	})
}

func TestWorkerStateString(t *testing.T) {
	states := map[workerState]string{
		stateAwait:       "await",
		statePrepare:     "prepare",
		stateProcess:     "process",
		stateRetry:       "retry",
		stateFinish:      "finish",
		stateAbort:       "abort",
		stateExit:        "exit",
		workerState(200): "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("String() = %q, want %q", s.String(), want)
		}
	}
}
