// Package metrics exposes update cycle statistics in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/rocache/internal/manager"
	"github.com/starford/rocache/internal/models"
)

const namespace = "rocache"

// Crate states used as the "state" label of the crates gauge.
const (
	StateValid   = "valid"
	StateInvalid = "invalid"
)

// Metrics holds the instruments for one registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles      prometheus.Counter
	failures    prometheus.Counter
	crates      *prometheus.GaugeVec
	artifacts   prometheus.Gauge
	actions     *prometheus.CounterVec
	linkActions *prometheus.CounterVec
	duration    prometheus.Histogram
	version     prometheus.Gauge
}

// New creates Metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_cycles_total",
			Help:      "Total update cycles run.",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_failures_total",
			Help:      "Total update cycles that returned an error.",
		}),
		crates: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "crates",
			Help:      "Crates in the current snapshot by validity.",
		}, []string{"state"}),
		artifacts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts",
			Help:      "Artifacts in the current snapshot.",
		}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crate_actions_total",
			Help:      "Reconciliation actions taken per crate.",
		}, []string{"action"}),
		linkActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_actions_total",
			Help:      "Link directory operations by outcome.",
		}, []string{"action"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Wall time of an update cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		version: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_version",
			Help:      "Version of the last produced snapshot.",
		}),
	}
}

// ObserveUpdate implements manager.Recorder.
func (m *Metrics) ObserveUpdate(s *models.Snapshot, r *manager.Report) {
	m.cycles.Inc()
	m.duration.Observe(r.Duration.Seconds())
	m.version.Set(float64(s.Version))

	for _, e := range r.Entries {
		m.actions.WithLabelValues(e.Action.String()).Inc()
	}

	m.linkActions.WithLabelValues("created").Add(float64(r.Links.Created))
	m.linkActions.WithLabelValues("replaced").Add(float64(r.Links.Replaced))
	m.linkActions.WithLabelValues("unchanged").Add(float64(r.Links.Unchanged))
	m.linkActions.WithLabelValues("failed").Add(float64(r.Links.Failed))
	m.linkActions.WithLabelValues("pruned").Add(float64(len(r.Pruned)))

	valid, invalid, artifacts := 0, 0, 0
	for _, c := range s.Crates {
		if c.Valid {
			valid++
		} else {
			invalid++
		}
		artifacts += len(c.Artifacts)
	}
	m.crates.WithLabelValues(StateValid).Set(float64(valid))
	m.crates.WithLabelValues(StateInvalid).Set(float64(invalid))
	m.artifacts.Set(float64(artifacts))
}

// ObserveFailure counts an update cycle that did not complete.
func (m *Metrics) ObserveFailure() {
	m.failures.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ manager.Recorder = (*Metrics)(nil)
