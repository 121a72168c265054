// Package gwpool runs blocking work items on a bounded set of worker
// goroutines and hands their completions back to a single controlling
// goroutine.
//
// The controlling goroutine (typically the one driving a script VM or a
// server tick) calls Enqueue to submit work and Process, once per tick, to
// run OnCompleted for every item the workers have finished. Completion
// hooks therefore never run concurrently with the controlling goroutine's
// own state.
package gwpool

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/alitto/pond"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MaxWorkerThreads is the hard cap on worker goroutines. Initialize clamps
// to it silently.
const MaxWorkerThreads = 32

// ThreadPool moves work items from the pending queue through the workers to
// the finished queue. Initialize and Terminate must be serialized by the
// caller; Enqueue may be called from any goroutine; Process only from the
// controlling goroutine.
type ThreadPool struct {
	running    atomic.Bool
	terminated atomic.Bool
	size       atomic.Int32
	live       atomic.Int32

	pending  *pendingQueue
	finished *finishedQueue
	workers  *pond.WorkerPool

	logger       *zap.Logger
	metrics      *metrics
	registerer   prometheus.Registerer
	namespace    string
	resubmit     bool
	panicHandler func(error)
}

// NewThreadPool returns an empty pool that is not running. Until Initialize
// is called with a non-zero count, Enqueue runs items synchronously.
func NewThreadPool(opts ...Option) *ThreadPool {
	p := &ThreadPool{
		pending:  newPendingQueue(),
		finished: newFinishedQueue(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registerer != nil {
		p.metrics = newMetrics(p, p.registerer, p.namespace)
	}
	return p
}

// Initialize starts min(count, MaxWorkerThreads) workers. It is a no-op
// returning true when count is zero or the pool already has workers.
func (p *ThreadPool) Initialize(count uint32) bool {
	if count == 0 || p.running.Load() || p.workers != nil {
		return true
	}
	if count > MaxWorkerThreads {
		count = MaxWorkerThreads
	}
	n := int(count)

	p.terminated.Store(false)
	p.running.Store(true)
	// Eager so every Submit below starts its own goroutine; a worker loop
	// never returns to pond until Terminate.
	p.workers = pond.New(n, n,
		pond.Strategy(pond.Eager()),
		pond.PanicHandler(p.recoverWorker))
	p.size.Store(int32(n))
	for i := 0; i < n; i++ {
		w := &worker{pool: p, id: i}
		p.workers.Submit(w.run)
	}

	p.logger.Info("thread pool initialized", zap.Int("workers", n))
	return p.running.Load()
}

// Terminate stops the workers and waits for them to exit. Items finished
// but not yet processed get OnCompleted here, and their resubmit requests
// are ignored. Items still waiting in the pending queue get
// OnAborted(false). It is a no-op if the pool is not running.
func (p *ThreadPool) Terminate(shutdown bool) {
	if p.workers == nil || !p.running.Load() {
		return
	}
	n := int(p.size.Load())

	p.pending.poison(n, func() {
		p.running.Store(false)
		p.terminated.Store(true)
	})
	p.workers.StopAndWait()
	p.workers = nil
	p.size.Store(0)

	completed := 0
	for {
		item, ok := p.finished.Dequeue()
		if !ok {
			break
		}
		if item == nil {
			continue
		}
		item.OnCompleted()
		p.metrics.incCompleted()
		completed++
	}

	aborted := 0
	for _, item := range p.pending.drain() {
		item.OnAborted(false)
		p.metrics.incAborted()
		aborted++
	}

	p.logger.Info("thread pool terminated",
		zap.Int("workers", n),
		zap.Int("drained", completed),
		zap.Int("aborted_pending", aborted),
		zap.Bool("shutdown", shutdown))
}

// Close terminates the pool. It exists so a pool can be released with
// defer like any other io.Closer.
func (p *ThreadPool) Close() error {
	p.Terminate(true)
	return nil
}

// Process runs OnCompleted for the items the workers have finished. It
// never blocks: it takes a snapshot of the finished queue's length and
// completes at most one more than that.
func (p *ThreadPool) Process() {
	n := p.finished.Len()
	for i := 0; i <= n; i++ {
		item, ok := p.finished.Dequeue()
		if !ok {
			return
		}
		if item == nil {
			continue
		}
		again := item.OnCompleted()
		p.metrics.incCompleted()
		if again && p.resubmit {
			p.Enqueue(item)
		}
	}
}

// Enqueue hands item to the pool. A nil item (including a nil pointer stored
// in the interface), or any item submitted after Terminate, is dropped
// without callbacks.
//
// With no workers the item runs right here: Prepare, then Process once,
// then OnAborted(true) if Process asked for a retry it cannot get, and
// always OnCompleted before Enqueue returns.
func (p *ThreadPool) Enqueue(item Item) {
	if isNilItem(item) {
		return
	}
	if p.size.Load() == 0 {
		if p.terminated.Load() {
			return
		}
		p.metrics.incEnqueued()
		p.runInline(item)
		return
	}
	if p.pending.pushIf(item, p.running.Load) {
		p.metrics.incEnqueued()
	}
}

func isNilItem(item Item) bool {
	if item == nil {
		return true
	}
	v := reflect.ValueOf(item)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func (p *ThreadPool) runInline(item Item) {
	if item.Prepare() {
		if item.Process() {
			item.OnAborted(true)
			p.metrics.incAborted()
		}
	} else {
		p.metrics.incPrepareFailures()
	}
	item.OnCompleted()
	p.metrics.incCompleted()
}

func (p *ThreadPool) recoverWorker(r interface{}) {
	p.metrics.incPanics()
	p.logger.Error("worker goroutine panicked", zap.Any("panic", r))
	if p.panicHandler != nil {
		p.panicHandler(fmt.Errorf("%w: %v", ErrWorkerPanic, r))
	}
}

// Running reports whether the pool accepts work for its workers.
func (p *ThreadPool) Running() bool {
	return p.running.Load()
}

// WorkerCount returns the number of workers started by Initialize.
func (p *ThreadPool) WorkerCount() int {
	return int(p.size.Load())
}

// LiveWorkers returns the number of workers currently inside the worker
// loop. It trails WorkerCount briefly after Initialize and drops when a
// worker is lost to a panic.
func (p *ThreadPool) LiveWorkers() int {
	return int(p.live.Load())
}

// Pending returns the number of entries in the pending queue, poison
// included.
func (p *ThreadPool) Pending() int {
	return p.pending.len()
}

// Finished returns the approximate number of items waiting for Process.
func (p *ThreadPool) Finished() int {
	return p.finished.Len()
}
