package gwpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Option func(*ThreadPool)

// WithLogger sets the logger for lifecycle events and worker panics.
func WithLogger(logger *zap.Logger) Option {
	return func(p *ThreadPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics registers the pool's collectors with reg under namespace.
func WithMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(p *ThreadPool) {
		p.registerer = reg
		p.namespace = namespace
	}
}

// WithResubmit makes Process re-enqueue items whose OnCompleted returns
// true. Off by default, in which case that result is ignored.
func WithResubmit(resubmit bool) Option {
	return func(p *ThreadPool) {
		p.resubmit = resubmit
	}
}

// WithPanicHandler is called, after logging, when a work item panics on a
// worker. The worker goroutine is lost; the pool keeps running with the
// rest.
func WithPanicHandler(handler func(err error)) Option {
	return func(p *ThreadPool) {
		p.panicHandler = handler
	}
}
