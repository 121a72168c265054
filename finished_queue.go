package gwpool

import "sync/atomic"

// finishedQueue is an unbounded lock-free MPMC FIFO (Michael-Scott). Workers
// push completed items, the controlling goroutine drains them without
// blocking. It is unbounded so a worker can never stall on a full queue
// while Terminate is joining it.
type finishedQueue struct {
	head atomic.Pointer[finishedNode]
	_    [56]byte // keep head and tail on separate cache lines
	tail atomic.Pointer[finishedNode]
	_    [56]byte
	size atomic.Int64
}

type finishedNode struct {
	// item is cleared once the node becomes the stub, so a drained item is
	// not kept alive by the queue.
	item atomic.Pointer[Item]
	next atomic.Pointer[finishedNode]
}

func newFinishedQueue() *finishedQueue {
	q := &finishedQueue{}
	stub := &finishedNode{}
	q.head.Store(stub)
	q.tail.Store(stub)
	return q
}

// Enqueue appends item. It never fails.
func (q *finishedQueue) Enqueue(item Item) {
	n := &finishedNode{}
	n.item.Store(&item)
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// tail is lagging, help it along
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.size.Add(1)
			return
		}
	}
}

// Dequeue removes the oldest item; ok is false when the queue is empty.
func (q *finishedQueue) Dequeue() (item Item, ok bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			return nil, false
		}
		if head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		ref := next.item.Load()
		if q.head.CompareAndSwap(head, next) {
			next.item.Store(nil)
			q.size.Add(-1)
			if ref == nil {
				return nil, true
			}
			return *ref, true
		}
	}
}

// Len is approximate while producers or consumers are active.
func (q *finishedQueue) Len() int {
	n := q.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
