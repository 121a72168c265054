package gwpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type ThreadPoolBuilder struct {
	workers      uint32
	logger       *zap.Logger
	registerer   prometheus.Registerer
	namespace    string
	resubmit     bool
	panicHandler func(error)
}

func NewThreadPoolBuilder() *ThreadPoolBuilder {
	return &ThreadPoolBuilder{
		workers: 4,
		logger:  zap.NewNop(),
	}
}

// Build creates the pool and initializes it with the configured worker
// count. A count of zero yields a pool in synchronous mode.
func (b *ThreadPoolBuilder) Build() *ThreadPool {
	opts := []Option{
		WithLogger(b.logger),
		WithResubmit(b.resubmit),
	}
	if b.registerer != nil {
		opts = append(opts, WithMetrics(b.registerer, b.namespace))
	}
	if b.panicHandler != nil {
		opts = append(opts, WithPanicHandler(b.panicHandler))
	}

	pool := NewThreadPool(opts...)
	pool.Initialize(b.workers)
	return pool
}

func (b *ThreadPoolBuilder) WithWorkers(workers uint32) *ThreadPoolBuilder {
	b.workers = workers
	return b
}

func (b *ThreadPoolBuilder) WithLogger(logger *zap.Logger) *ThreadPoolBuilder {
	b.logger = logger
	return b
}

func (b *ThreadPoolBuilder) WithMetrics(reg prometheus.Registerer, namespace string) *ThreadPoolBuilder {
	b.registerer = reg
	b.namespace = namespace
	return b
}

func (b *ThreadPoolBuilder) WithResubmit(resubmit bool) *ThreadPoolBuilder {
	b.resubmit = resubmit
	return b
}

func (b *ThreadPoolBuilder) WithPanicHandler(handler func(error)) *ThreadPoolBuilder {
	b.panicHandler = handler
	return b
}
