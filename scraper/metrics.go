package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for upstream calls and the cover cache.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CandidatesTotal *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmeta_upstream_requests_total",
			Help: "Total upstream HTTP requests by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookmeta_upstream_request_duration_seconds",
			Help:    "Upstream request latency by source.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	candidates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmeta_cover_candidates_total",
			Help: "Cover candidates produced by source.",
		},
		[]string{"source"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmeta_cover_cache_lookups_total",
			Help: "Web cover cache lookups by result.",
		},
		[]string{"result"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmeta_upstream_errors_total",
			Help: "Swallowed upstream errors by source and type.",
		},
		[]string{"source", "error_type"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookmeta_circuit_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open).",
		},
		[]string{"source"},
	)

	registry.MustRegister(requests, requestDuration, candidates, cacheLookups, errorsTotal, breakerState)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		CandidatesTotal: candidates,
		CacheLookups:    cacheLookups,
		ErrorsTotal:     errorsTotal,
		BreakerState:    breakerState,
	}
}

// IncRequest counts one upstream request outcome.
func (m *Metrics) IncRequest(source, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveDuration records an upstream request duration.
func (m *Metrics) ObserveDuration(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(source).Observe(d.Seconds())
}

// AddCandidates counts cover candidates produced by a source.
func (m *Metrics) AddCandidates(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesTotal.WithLabelValues(source).Add(float64(n))
}

// IncCache counts a cache hit or miss.
func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// IncError counts a swallowed error for a source.
func (m *Metrics) IncError(source, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(source, errorType).Inc()
}

// SetBreakerState records a circuit breaker transition.
func (m *Metrics) SetBreakerState(source string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(source).Set(state)
}
