// Package jobmetrics instruments background task runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts task runs, their outcome and the records they touched.
// A nil *Metrics records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
}

var shared = sync.OnceValue(func() *Metrics {
	return build(prometheus.DefaultRegisterer)
})

// NewMetrics registers the collectors on registerer. A nil registerer uses the
// process-wide default registry, registering at most once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return shared()
	}
	return build(registerer)
}

func build(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Task runs by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "odyssey",
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Task run duration by task type.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 15, 60},
		}, []string{"task"}),
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "jobs",
			Name:      "records_total",
			Help:      "Records a task run touched, such as expired quotations or purged idempotency keys.",
		}, []string{"task"}),
	}
}

// Tracker times one task run.
type Tracker struct {
	m     *Metrics
	task  string
	start time.Time
}

// Track starts timing a run of task.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{m: m, task: task, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil {
		return err
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.m.runs.WithLabelValues(t.task, outcome).Inc()
	t.m.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// AddProcessed adds count to the records touched by task.
func (m *Metrics) AddProcessed(task string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.processed.WithLabelValues(task).Add(float64(count))
}
