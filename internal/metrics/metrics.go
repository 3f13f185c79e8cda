// Package metrics provides Prometheus metrics for jsonkeeper
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters of one process. All methods are safe on a nil
// receiver so components can run without metrics.
type Metrics struct {
	Registry *prometheus.Registry

	WritesTotal         *prometheus.CounterVec
	ForbiddenTotal      *prometheus.CounterVec
	ActivitiesTotal     *prometheus.CounterVec
	ActivityErrorsTotal prometheus.Counter
	GCDeletedTotal      prometheus.Counter
	GCRunsTotal         *prometheus.CounterVec
}

// New registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{Registry: reg}

	m.WritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonkeeper_document_writes_total",
			Help: "Document writes by operation and rewrite outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.ForbiddenTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonkeeper_forbidden_total",
			Help: "Rejected mutating requests by operation",
		},
		[]string{"operation"},
	)

	m.ActivitiesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonkeeper_activities_appended_total",
			Help: "Activity records appended by kind",
		},
		[]string{"kind"},
	)

	m.ActivityErrorsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "jsonkeeper_activity_append_errors_total",
			Help: "Activity appends that failed after a successful document write",
		},
	)

	m.GCDeletedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "jsonkeeper_gc_deleted_total",
			Help: "Documents removed by the garbage collector",
		},
	)

	m.GCRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonkeeper_gc_runs_total",
			Help: "Garbage collector sweeps by status",
		},
		[]string{"status"},
	)

	return m
}

func (m *Metrics) RecordWrite(operation, outcome string) {
	if m == nil {
		return
	}
	m.WritesTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordForbidden(operation string) {
	if m == nil {
		return
	}
	m.ForbiddenTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordActivity(kind string) {
	if m == nil {
		return
	}
	m.ActivitiesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordActivityError() {
	if m == nil {
		return
	}
	m.ActivityErrorsTotal.Inc()
}

func (m *Metrics) RecordSweep(deleted int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GCRunsTotal.WithLabelValues(status).Inc()
	m.GCDeletedTotal.Add(float64(deleted))
}
