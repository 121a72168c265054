package gwpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// metrics holds the pool's Prometheus collectors. A pool built without
// WithMetrics has nil metrics and skips every update.
type metrics struct {
	enqueued        prometheus.Counter
	completed       prometheus.Counter
	aborted         prometheus.Counter
	retries         prometheus.Counter
	prepareFailures prometheus.Counter
	panics          prometheus.Counter
}

func newMetrics(p *ThreadPool, reg prometheus.Registerer, namespace string) *metrics {
	const subsystem = "threadpool"
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string, fn func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, fn)
	}

	m := &metrics{
		enqueued:        counter("enqueued_total", "Work items accepted by Enqueue"),
		completed:       counter("completed_total", "Work items whose OnCompleted ran"),
		aborted:         counter("aborted_total", "Work items cancelled by shutdown"),
		retries:         counter("retries_total", "In-place Process retries requested by work items"),
		prepareFailures: counter("prepare_failures_total", "Work items whose Prepare returned false"),
		panics:          counter("worker_panics_total", "Worker goroutines lost to a panicking work item"),
	}

	collectors := []prometheus.Collector{
		m.enqueued, m.completed, m.aborted, m.retries, m.prepareFailures, m.panics,
		gauge("pending_items", "Entries waiting in the pending queue", func() float64 { return float64(p.Pending()) }),
		gauge("finished_items", "Completed items waiting for Process", func() float64 { return float64(p.Finished()) }),
		gauge("live_workers", "Worker goroutines currently running the worker loop", func() float64 { return float64(p.LiveWorkers()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			p.logger.Warn("metric registration failed", zap.Error(err))
		}
	}
	return m
}

func (m *metrics) incEnqueued() {
	if m != nil {
		m.enqueued.Inc()
	}
}

func (m *metrics) incCompleted() {
	if m != nil {
		m.completed.Inc()
	}
}

func (m *metrics) incAborted() {
	if m != nil {
		m.aborted.Inc()
	}
}

func (m *metrics) incRetries() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *metrics) incPrepareFailures() {
	if m != nil {
		m.prepareFailures.Inc()
	}
}

func (m *metrics) incPanics() {
	if m != nil {
		m.panics.Inc()
	}
}
