// Package metrics exposes engine operation metrics to Prometheus.
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

const namespace = "portfolio_engine"

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	operationDuration  *prometheus.HistogramVec
	solverIterations   *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	scenarioBreaches   prometheus.Counter
}

// New creates the engine metrics on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method", "status"},
		),

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation", "outcome"},
		),

		solverIterations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solver_iterations",
				Help:      "Iterations used by the allocation solver",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"objective"},
		),

		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Validation errors by request kind and code",
			},
			[]string{"kind", "code"},
		),

		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups by kind and outcome",
			},
			[]string{"kind", "result"},
		),

		scenarioBreaches: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stress_scenario_breaches_total",
				Help:      "Stress scenarios whose loss exceeded their threshold",
			},
		),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ObserveOperation records the duration of an engine operation. outcome is
// typically ok, invalid, infeasible or error.
func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	m.operationDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// ObserveSolver records the iteration count of one optimization.
func (m *Metrics) ObserveSolver(objective string, iterations int) {
	m.solverIterations.WithLabelValues(objective).Observe(float64(iterations))
}

// CountValidationFailure records one validation error code.
func (m *Metrics) CountValidationFailure(kind, code string) {
	m.validationFailures.WithLabelValues(kind, code).Inc()
}

// CountCacheLookup records a cache hit or miss.
func (m *Metrics) CountCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// CountBreaches adds breached stress scenarios.
func (m *Metrics) CountBreaches(n int) {
	if n > 0 {
		m.scenarioBreaches.Add(float64(n))
	}
}
