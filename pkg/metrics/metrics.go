// Package metrics defines the Prometheus metric collectors used by the
// expansion service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. Each instance owns
// its registry so several can coexist in one process (tests, the CLI).
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	ExpansionRequestsTotal *prometheus.CounterVec
	ExpansionLatency       prometheus.Histogram
	ModuleCallsTotal       *prometheus.CounterVec
	ModuleLatency          *prometheus.HistogramVec
	SuggestionsPerTerm     prometheus.Histogram
	CacheHitsTotal         *prometheus.CounterVec
	CacheMissesTotal       prometheus.Counter
	ModulesLoaded          prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
	AnalyticsDroppedTotal  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ExpansionRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expansion_requests_total",
				Help: "Total expansion requests by outcome (ok, partial, syntax_error, error).",
			},
			[]string{"outcome"},
		),
		ExpansionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "expansion_latency_seconds",
				Help:    "End-to-end query expansion latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		ModuleCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "module_calls_total",
				Help: "Module expand calls by module and status (ok, empty, error, timeout, open).",
			},
			[]string{"module", "status"},
		),
		ModuleLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "module_latency_seconds",
				Help:    "Latency of a single module expand call in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"module"},
		),
		SuggestionsPerTerm: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "suggestions_per_term",
				Help:    "Number of merged suggestions returned per term.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "suggestion_cache_hits_total",
				Help: "Suggestion cache hits by tier (local, redis).",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "suggestion_cache_misses_total",
				Help: "Total number of suggestion cache misses.",
			},
		),
		ModulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "modules_loaded",
				Help: "Number of expansion modules in the registry.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		AnalyticsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Expansion events dropped because the collector buffer was full.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ExpansionRequestsTotal,
		m.ExpansionLatency,
		m.ModuleCallsTotal,
		m.ModuleLatency,
		m.SuggestionsPerTerm,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ModulesLoaded,
		m.CircuitBreakerState,
		m.AnalyticsDroppedTotal,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for this instance.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
