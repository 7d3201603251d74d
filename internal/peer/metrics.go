package peer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the peer's prometheus collectors on a private registry so
// multiple peers can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	TasksExecuted   *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	DispatchRetries prometheus.Counter
	QueueDepth      prometheus.Gauge
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		TasksExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_tasks_executed_total",
			Help: "Tasks executed by final status.",
		}, []string{"status"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fabric_cache_hits_total",
			Help: "Result cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fabric_cache_misses_total",
			Help: "Result cache misses.",
		}),
		DispatchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fabric_dispatch_retries_total",
			Help: "Remote dispatch attempts beyond the first.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fabric_scheduler_queue_depth",
			Help: "Tasks waiting in the scheduler queue.",
		}),
	}
	reg.MustRegister(m.TasksExecuted, m.CacheHits, m.CacheMisses, m.DispatchRetries, m.QueueDepth)
	return m
}
