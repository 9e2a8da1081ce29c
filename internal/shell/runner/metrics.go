package runner

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}

// Metrics records dispatch outcomes. A nil *Metrics records nothing.
type Metrics struct {
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

// NewMetrics creates the dispatch collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopdeploy",
			Subsystem: "dispatch",
			Name:      "tasks_total",
			Help:      "Count of dispatched external commands by outcome",
		}, []string{"kind", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shopdeploy",
			Subsystem: "dispatch",
			Name:      "task_duration_seconds",
			Help:      "Wall time of dispatched external commands",
			Buckets:   durationBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		return m
	}

	if err := reg.Register(m.tasksTotal); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				m.tasksTotal = existing
			}
		}
	}
	if err := reg.Register(m.taskDuration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.taskDuration = existing
			}
		}
	}
	return m
}

func (m *Metrics) observe(kind string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.tasksTotal.With(prometheus.Labels{"kind": kind, "outcome": outcome}).Inc()
	m.taskDuration.With(prometheus.Labels{"kind": kind}).Observe(d.Seconds())
}
