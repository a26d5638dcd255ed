// Package monitoring exposes Prometheus metrics and health checks for the
// section pipeline.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sectionloader"

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sections        *prometheus.CounterVec
	sectionDuration *prometheus.HistogramVec
	watches         *prometheus.CounterVec
	builds          *prometheus.CounterVec
	buildDuration   prometheus.Histogram
	missingEntries  prometheus.Counter
	tokens          prometheus.Counter
	runs            prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry, together with the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		sections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_total",
			Help:      "Section pipelines completed, by outcome.",
		}, []string{"outcome"}),
		sectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_duration_seconds",
			Help:      "Time from fetch start to pipeline completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		watches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_completions_total",
			Help:      "Convergence watches completed, by winning signal.",
		}, []string{"reason"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Builder invocations, by outcome.",
		}, []string{"outcome"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of a single builder invocation.",
			Buckets:   prometheus.DefBuckets,
		}),
		missingEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_registry_entries_total",
			Help:      "Discovered token ids with no registry entry.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_discovered_total",
			Help:      "Distinct token ids discovered by rewrites.",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestrator runs started.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sections,
		m.sectionDuration,
		m.watches,
		m.builds,
		m.buildDuration,
		m.missingEntries,
		m.tokens,
		m.runs,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RunStarted counts an orchestrator run.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runs.Inc()
}

// SectionCompleted records a section outcome and its duration.
func (m *Metrics) SectionCompleted(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.sections.WithLabelValues(outcome).Inc()
	m.sectionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// WatchCompleted records which signal completed a watch.
func (m *Metrics) WatchCompleted(reason string) {
	if m == nil {
		return
	}
	m.watches.WithLabelValues(reason).Inc()
}

// BuildCompleted records one builder invocation.
func (m *Metrics) BuildCompleted(err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.builds.WithLabelValues(outcome).Inc()
	m.buildDuration.Observe(d.Seconds())
}

// MissingEntry counts a token id without a registry entry.
func (m *Metrics) MissingEntry() {
	if m == nil {
		return
	}
	m.missingEntries.Inc()
}

// TokensDiscovered adds n discovered ids.
func (m *Metrics) TokensDiscovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokens.Add(float64(n))
}
