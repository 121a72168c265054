package gwpool

import "errors"

// ErrAborted is recorded by items the pool cancelled during shutdown.
var ErrAborted = errors.New("gwpool: work item aborted by shutdown")

// ErrWorkerPanic is reported to the panic handler when a work item lets a
// panic escape Prepare or Process.
var ErrWorkerPanic = errors.New("gwpool: worker panicked")
