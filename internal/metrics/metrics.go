// Package metrics defines the Prometheus collectors shared by relval
// components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relval"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Operations  *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	LockWait    prometheus.Histogram
	QueueDepth  prometheus.Gauge
	BusyWorkers prometheus.Gauge
	Jobs        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "operations_total",
			Help:      "Controller operations by collection, operation and outcome.",
		}, []string{"collection", "operation", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "operation_duration_seconds",
			Help:      "Controller operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "operation"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "locker",
			Name:      "wait_seconds",
			Help:      "Time spent waiting to acquire named locks.",
			Buckets:   []float64{.0001, .001, .01, .1, .5, 1, 5, 30},
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}),
		BusyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "busy_workers",
			Help:      "Workers currently running a job.",
		}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "jobs_total",
			Help:      "Finished jobs by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.Duration, m.LockWait, m.QueueDepth, m.BusyWorkers, m.Jobs)
	}
	return m
}

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// ObserveOperation records one controller operation.
func (m *Metrics) ObserveOperation(collection, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.Operations.WithLabelValues(collection, operation, outcome).Inc()
	m.Duration.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}

// ObserveLockWait records time spent waiting for a lock.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

// SetQueueDepth records the number of pending jobs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// WorkerBusy adjusts the busy worker gauge by delta.
func (m *Metrics) WorkerBusy(delta int) {
	if m == nil {
		return
	}
	m.BusyWorkers.Add(float64(delta))
}

// JobFinished counts one finished job.
func (m *Metrics) JobFinished(outcome string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(outcome).Inc()
}
