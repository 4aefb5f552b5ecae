package stats

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports the runtime's Prometheus collectors (§4.9/§C4 DOMAIN STACK entry):
// tasks executed, the adaptive tuples-per-task target, per-queue depth, and pooled
// buffer availability.
type Metrics struct {
	Registry *prometheus.Registry

	TasksExecuted       *prometheus.CounterVec
	TuplesPerTask       *prometheus.GaugeVec
	QueueDepth          *prometheus.GaugeVec
	BufferPoolAvailable prometheus.Gauge
}

// NewMetrics registers every collector on a fresh registry, so multiple engine
// instances in one process (e.g. in tests) never collide on global registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		TasksExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nebula_tasks_executed_total",
			Help: "Total number of tasks executed per pipeline.",
		}, []string{"pipeline"}),
		TuplesPerTask: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nebula_tuples_per_task",
			Help: "Current adaptive tuples-per-task target per query.",
		}, []string{"query"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nebula_queue_depth",
			Help: "Current pending task count per scheduler queue.",
		}, []string{"queue"}),
		BufferPoolAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nebula_buffer_pool_available",
			Help: "Number of currently free pooled tuple buffers.",
		}),
	}

	reg.MustRegister(m.TasksExecuted, m.TuplesPerTask, m.QueueDepth, m.BufferPoolAvailable)
	return m
}
