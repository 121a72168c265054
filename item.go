package gwpool

// Item is a unit of asynchronous work owned by the pool from Enqueue until
// OnCompleted returns or OnAborted runs. Exactly one goroutine touches an
// item at a time, so implementations need no locking of their own.
//
// Prepare and Process run on a worker goroutine. OnCompleted runs on the
// goroutine calling ThreadPool.Process (or Terminate). OnAborted runs on
// whichever goroutine holds the item when shutdown cuts it off, which may
// be a worker; it must not touch state owned by the controlling goroutine.
//
// None of the hooks may panic. Failures are stored on the item and
// reported through the boolean results.
type Item interface {
	// Prepare runs once, right after a worker takes the item.
	// Returning false skips Process and sends the item straight to
	// completion.
	Prepare() bool
	// Process returns true to be called again in place, false when done.
	Process() bool
	// OnCompleted returns true to ask for resubmission. The pool only
	// honours it when built WithResubmit(true).
	OnCompleted() bool
	// OnAborted is called instead of OnCompleted when shutdown interrupts
	// the item. retry reports whether the item was mid retry loop.
	OnAborted(retry bool)
}

// Func adapts a plain function to Item. Work runs once on a worker and
// Done, if set, receives its error on the controlling goroutine.
type Func struct {
	Work func() error
	Done func(err error)

	err error
}

// NewFunc returns a Func item for work, reporting to done.
func NewFunc(work func() error, done func(err error)) *Func {
	return &Func{Work: work, Done: done}
}

func (f *Func) Prepare() bool {
	return f.Work != nil
}

func (f *Func) Process() bool {
	f.err = f.Work()
	return false
}

func (f *Func) OnCompleted() bool {
	if f.Done != nil {
		f.Done(f.err)
	}
	return false
}

func (f *Func) OnAborted(bool) {
	f.err = ErrAborted
}

// Err returns the error recorded by the last run.
func (f *Func) Err() error {
	return f.err
}
