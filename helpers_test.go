package gwpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingItem counts every hook call and flags any overlapping access.
type countingItem struct {
	id         int
	retries    int32 // Process returns true this many times before false
	failPrep   bool
	resubmit   int32 // OnCompleted returns true this many times
	spin       bool  // Process always asks for a retry
	work       time.Duration
	block      chan struct{}
	panicInRun bool

	inUse      atomic.Bool
	violations *atomic.Int32

	prepares   atomic.Int32
	processes  atomic.Int32
	completes  atomic.Int32
	aborts     atomic.Int32
	abortRetry atomic.Bool
}

func newCountingItem(id int, violations *atomic.Int32) *countingItem {
	return &countingItem{id: id, violations: violations}
}

func (it *countingItem) enter() {
	if !it.inUse.CompareAndSwap(false, true) && it.violations != nil {
		it.violations.Add(1)
	}
}

func (it *countingItem) leave() {
	it.inUse.Store(false)
}

func (it *countingItem) Prepare() bool {
	it.enter()
	defer it.leave()
	it.prepares.Add(1)
	return !it.failPrep
}

func (it *countingItem) Process() bool {
	it.enter()
	defer it.leave()
	n := it.processes.Add(1)
	if it.panicInRun {
		panic("item exploded")
	}
	if it.block != nil {
		<-it.block
	}
	if it.work > 0 {
		time.Sleep(it.work)
	}
	if it.spin {
		return true
	}
	return n <= it.retries
}

func (it *countingItem) OnCompleted() bool {
	it.enter()
	defer it.leave()
	it.completes.Add(1)
	if it.resubmit > 0 {
		it.resubmit--
		return true
	}
	return false
}

func (it *countingItem) OnAborted(retry bool) {
	it.enter()
	defer it.leave()
	it.aborts.Add(1)
	it.abortRetry.Store(retry)
}

// settled reports whether the item reached exactly one terminal callback.
func (it *countingItem) settled() bool {
	return it.completes.Load()+it.aborts.Load() == 1
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// processUntil drives p.Process from the test goroutine until cond holds.
func processUntil(t *testing.T, p *ThreadPool, timeout time.Duration, cond func() bool) {
	t.Helper()
	waitFor(t, timeout, func() bool {
		p.Process()
		return cond()
	})
}

// terminateWithin fails the test if Terminate does not return in time.
func terminateWithin(t *testing.T, p *ThreadPool, timeout time.Duration) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		p.Terminate(false)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("Terminate did not return within %v - possible deadlock", timeout)
	}
	wg.Wait()
}
