// Package metrics exposes Prometheus collectors for the crawler services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Item outcome labels
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
	OutcomeDuplicate   = "duplicate"
	OutcomeDropped     = "dropped"
)

var (
	itemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_items_processed_total",
			Help: "Total number of work items processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	providerRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_provider_request_duration_seconds",
			Help:    "Histogram of provider call latencies, labeled by provider.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)

	rateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_wait_seconds",
			Help:    "Histogram of time spent waiting for the global rate limiter.",
			Buckets: []float64{0.01, 0.1, 0.35, 0.5, 1, 2, 5, 10},
		},
	)

	providerHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawler_provider_healthy",
			Help: "1 when the provider is considered healthy, 0 otherwise.",
		},
		[]string{"provider"},
	)

	jobsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_jobs_created_total",
			Help: "Total number of crawl jobs created.",
		},
	)

	jobsFinishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_jobs_finished_total",
			Help: "Total number of crawl jobs that reached the finished state.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem increments the processed item counter for the outcome.
func ObserveItem(outcome string) {
	itemsProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveProviderRequest records a provider call latency.
func ObserveProviderRequest(provider string, duration time.Duration) {
	providerRequestDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveRateLimitWait records how long a call waited for the limiter.
func ObserveRateLimitWait(duration time.Duration) {
	rateLimitWaitSeconds.Observe(duration.Seconds())
}

// SetProviderHealth publishes the provider health flag.
func SetProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	providerHealthy.WithLabelValues(provider).Set(v)
}

// ObserveJobCreated increments the created jobs counter.
func ObserveJobCreated() {
	jobsCreatedTotal.Inc()
}

// ObserveJobFinished increments the finished jobs counter.
func ObserveJobFinished() {
	jobsFinishedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
