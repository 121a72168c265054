package gwpool

import (
	"sync"

	"github.com/eapache/queue"
)

// pendingQueue is the blocking MPMC queue feeding workers. A nil entry is
// poison: it only exists to wake a blocked worker during shutdown.
type pendingQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items *queue.Queue
}

func newPendingQueue() *pendingQueue {
	q := &pendingQueue{items: queue.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// pushIf adds item only while accept reports true, checked under the lock.
func (q *pendingQueue) pushIf(item Item, accept func() bool) bool {
	q.mu.Lock()
	if !accept() {
		q.mu.Unlock()
		return false
	}
	q.items.Add(item)
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// poison runs fn under the lock, appends n poison entries and wakes every
// waiter, so each blocked worker observes a non-empty queue.
func (q *pendingQueue) poison(n int, fn func()) {
	q.mu.Lock()
	fn()
	for i := 0; i < n; i++ {
		q.items.Add(nil)
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pop blocks until an entry is available and removes it. The result is nil
// for poison.
func (q *pendingQueue) pop() Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Length() == 0 {
		q.cond.Wait()
	}
	item, _ := q.items.Remove().(Item)
	return item
}

// drain empties the queue and returns the real items left in it.
func (q *pendingQueue) drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	var left []Item
	for q.items.Length() > 0 {
		if item, ok := q.items.Remove().(Item); ok && item != nil {
			left = append(left, item)
		}
	}
	return left
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}
