// Package metrics exposes Prometheus collectors for source refreshes, task
// preparation and live runs.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystaldolphin/taskdeck/internal/rerun"
	"github.com/crystaldolphin/taskdeck/internal/source"
	"github.com/crystaldolphin/taskdeck/internal/task"
)

const namespace = "taskdeck"

// Prepare outcomes.
const (
	ResultOK          = "ok"
	ResultUnresolved  = "unresolved_variable"
	ResultMalformed   = "malformed_reference"
	ResultNotFound    = "not_found"
	ResultConflict    = "concurrency_conflict"
	ResultOtherFailed = "error"
)

// Metrics owns a private registry so tests and several servers in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	tasks           *prometheus.GaugeVec
	diagnostics     *prometheus.GaugeVec
	prepares        *prometheus.CounterVec
	liveRuns        prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_refreshes_total",
			Help:      "Completed source reloads by source kind and result.",
		}, []string{"kind", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_refresh_duration_seconds",
			Help:      "Time spent reading and parsing a source.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"kind"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_tasks",
			Help:      "Tasks in the latest registry snapshot by source kind.",
		}, []string{"kind"}),
		diagnostics: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_diagnostics",
			Help:      "Diagnostics in the latest registry snapshot by type.",
		}, []string{"type"}),
		prepares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prepares_total",
			Help:      "Spawn preparations and handoffs by result.",
		}, []string{"result"}),
		liveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_runs",
			Help:      "Runs handed off and not reported finished yet.",
		}),
	}
	m.registry.MustRegister(
		m.refreshes,
		m.refreshDuration,
		m.tasks,
		m.diagnostics,
		m.prepares,
		m.liveRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRefresh has the source.RefreshFunc signature.
func (m *Metrics) ObserveRefresh(_ string, kind source.Kind, _ int, err error, took time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(string(kind), result).Inc()
	m.refreshDuration.WithLabelValues(string(kind)).Observe(took.Seconds())
}

// ObserveSnapshot records the size and health of a registry snapshot.
func (m *Metrics) ObserveSnapshot(snap source.Snapshot) {
	for _, k := range source.Kinds {
		m.tasks.WithLabelValues(string(k)).Set(0)
	}
	for _, e := range snap.Entries {
		m.tasks.WithLabelValues(string(e.Kind)).Inc()
	}

	var parse, dup, other float64
	for _, d := range snap.Diagnostics {
		switch {
		case errors.Is(d.Err, source.ErrDuplicateTaskID):
			dup++
		case errors.Is(d.Err, source.ErrSourceParse):
			parse++
		default:
			other++
		}
	}
	m.diagnostics.WithLabelValues("parse").Set(parse)
	m.diagnostics.WithLabelValues("duplicate_id").Set(dup)
	m.diagnostics.WithLabelValues("other").Set(other)
}

// ObservePrepare counts one preparation attempt, classified by err.
func (m *Metrics) ObservePrepare(err error) {
	m.prepares.WithLabelValues(Classify(err)).Inc()
}

// ObservePrepareResult counts a preparation that failed before Prepare ran.
func (m *Metrics) ObservePrepareResult(result string) {
	m.prepares.WithLabelValues(result).Inc()
}

// SetLiveRuns records the number of live runs.
func (m *Metrics) SetLiveRuns(n int) { m.liveRuns.Set(float64(n)) }

// Classify maps a preparation error onto a result label.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, task.ErrUndefinedVariable):
		return ResultUnresolved
	case errors.Is(err, task.ErrMalformedReference):
		return ResultMalformed
	case errors.Is(err, rerun.ErrConcurrencyConflict):
		return ResultConflict
	default:
		return ResultOtherFailed
	}
}
