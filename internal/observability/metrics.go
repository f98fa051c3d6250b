package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	evaluationsTotal      *prometheus.CounterVec
	scoringFallbacksTotal prometheus.Counter
	evaluationEventsTotal *prometheus.CounterVec
	sseClientsActiveGauge prometheus.Gauge
	persistenceFailures   prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluations_total",
			Help: "Total number of completed risk evaluations by risk level.",
		}, []string{"risk_level"})

		scoringFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scoring_layout_fallbacks_total",
			Help: "Times the compact feature layout was rejected and the extended layout retried.",
		})

		evaluationEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluation_events_total",
			Help: "Evaluation events delivered to live subscribers by origin.",
		}, []string{"origin"})

		sseClientsActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sse_clients_active",
			Help: "Number of active SSE subscribers on the evaluation feed.",
		})

		persistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evaluation_persistence_failures_total",
			Help: "Evaluations scored successfully but rejected by the store.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			evaluationsTotal,
			scoringFallbacksTotal,
			evaluationEventsTotal,
			sseClientsActiveGauge,
			persistenceFailures,
		)
	})
}

// APIRequests exposes the counter for served requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// EvaluationsTotal exposes the counter for completed evaluations.
func EvaluationsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// ScoringFallbacks exposes the counter for layout fallback retries.
func ScoringFallbacks() prometheus.Counter {
	RegisterMetrics()
	return scoringFallbacksTotal
}

// EvaluationEvents exposes the counter for delivered evaluation events.
func EvaluationEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationEventsTotal
}

// SSEClientsActive exposes the gauge tracking live feed subscribers.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActiveGauge
}

// PersistenceFailures exposes the counter for failed evaluation appends.
func PersistenceFailures() prometheus.Counter {
	RegisterMetrics()
	return persistenceFailures
}
