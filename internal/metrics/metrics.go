// Package metrics exposes Prometheus collectors for sweeps, fetches, and the
// query API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Candidate outcomes.
const (
	OutcomePremium     = "premium"
	OutcomePlatform    = "platform"
	OutcomeNotPlatform = "not_platform"
	OutcomeError       = "error"
	OutcomeInvalid     = "invalid"
	OutcomeSkipped     = "skipped"
)

var (
	fetchTotal           *prometheus.CounterVec
	fetchDurationSeconds prometheus.Histogram
	candidatesTotal      *prometheus.CounterVec
	recordsPersisted     prometheus.Counter
	batchFailuresTotal   prometheus.Counter
	activeWorkers        prometheus.Gauge
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times and is
// called implicitly by every Observe function.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_fetch_total",
				Help: "Page fetches, labeled by outcome (ok or failure kind).",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "storefront_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_candidates_total",
				Help: "Candidates processed by sweeps, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		recordsPersisted = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "storefront_records_persisted_total",
				Help: "Store records committed to the repository.",
			},
		)

		batchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "storefront_batch_failures_total",
				Help: "Commit batches that failed and were skipped.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "storefront_active_workers",
				Help: "Candidates currently inside the admission gate.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one page fetch.
func ObserveFetch(outcome string, duration time.Duration) {
	Init()
	fetchTotal.WithLabelValues(outcome).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveCandidate records the outcome of one candidate.
func ObserveCandidate(outcome string) {
	Init()
	candidatesTotal.WithLabelValues(outcome).Inc()
}

// ObservePersisted records n committed records.
func ObservePersisted(n int) {
	Init()
	recordsPersisted.Add(float64(n))
}

// ObserveBatchFailure records a failed commit batch.
func ObserveBatchFailure() {
	Init()
	batchFailuresTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
