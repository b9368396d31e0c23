// Package metrics exposes the service's Prometheus instrumentation.
//
// All record methods are safe on a nil *Set and become no-ops, so components
// under test do not need a registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles every collector the service records into one private registry.
type Set struct {
	registry *prometheus.Registry

	instancesPrepared  prometheus.Counter
	eventsMaterialized prometheus.Counter
	recoveriesInjected prometheus.Counter
	runsStarted        prometheus.Counter
	ticksComputed      prometheus.Counter
	rulesImported      prometheus.Counter

	activeRuns prometheus.Gauge

	prepareDuration     prometheus.Histogram
	tickComputeDuration prometheus.Histogram
	httpDuration        *prometheus.HistogramVec
}

// NewSet builds the registry and all collectors.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Set{
		registry: reg,
		instancesPrepared: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascadia_instances_prepared_total",
			Help: "Scenario instances materialized.",
		}),
		eventsMaterialized: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascadia_events_materialized_total",
			Help: "Primary impact/repair events written by prepare.",
		}),
		recoveriesInjected: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascadia_recoveries_injected_total",
			Help: "Synthetic recovery events injected by prepare.",
		}),
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascadia_runs_started_total",
			Help: "Simulation runs started.",
		}),
		ticksComputed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascadia_ticks_computed_total",
			Help: "Tick payloads precomputed across all runs.",
		}),
		rulesImported: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascadia_rules_imported_total",
			Help: "Template rules upserted by CSV import.",
		}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cascadia_active_runs",
			Help: "Simulation runs currently held in the registry.",
		}),
		prepareDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cascadia_prepare_duration_seconds",
			Help:    "Wall time of scenario prepare, materialization plus persistence.",
			Buckets: prometheus.DefBuckets,
		}),
		tickComputeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cascadia_tick_compute_duration_seconds",
			Help:    "Wall time of a single tick precomputation.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cascadia_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method, and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}
}

// InstancePrepared records one successful prepare and its event volumes.
func (s *Set) InstancePrepared(events, recoveries int, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.instancesPrepared.Inc()
	s.eventsMaterialized.Add(float64(events))
	s.recoveriesInjected.Add(float64(recoveries))
	s.prepareDuration.Observe(elapsed.Seconds())
}

// RunStarted records a new simulation run entering the registry.
func (s *Set) RunStarted() {
	if s == nil {
		return
	}
	s.runsStarted.Inc()
	s.activeRuns.Inc()
}

// RunEvicted records a run leaving the registry.
func (s *Set) RunEvicted() {
	if s == nil {
		return
	}
	s.activeRuns.Dec()
}

// TickComputed records one precomputed tick payload.
func (s *Set) TickComputed(elapsed time.Duration) {
	if s == nil {
		return
	}
	s.ticksComputed.Inc()
	s.tickComputeDuration.Observe(elapsed.Seconds())
}

// RulesImported records rules upserted by one import pass.
func (s *Set) RulesImported(n int) {
	if s == nil {
		return
	}
	s.rulesImported.Add(float64(n))
}

// ObserveHTTP records one served request.
func (s *Set) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (s *Set) Handler() http.Handler {
	if s == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
