// Package metrics exposes Prometheus collectors for the digest service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                  *prometheus.CounterVec
	phaseDurationSeconds       *prometheus.HistogramVec
	pageSummariesTotal         *prometheus.CounterVec
	pagesExtractedTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times; every
// observer calls it first.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmstxt_jobs_total",
				Help: "Total number of pipeline runs, labeled by entrypoint and final status.",
			},
			[]string{"entrypoint", "status"},
		)

		phaseDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmstxt_phase_duration_seconds",
				Help:    "Histogram of pipeline phase durations, labeled by phase and outcome.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"phase", "outcome"},
		)

		pageSummariesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmstxt_page_summaries_total",
				Help: "Total number of page summarization attempts, labeled by status.",
			},
			[]string{"status"},
		)

		pagesExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmstxt_pages_extracted_total",
				Help: "Total number of page extractions, labeled by site and status.",
			},
			[]string{"site", "status"},
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

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "llmstxt_active_workers",
				Help: "Number of workers currently running a pipeline.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmstxt_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by limiter key.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"key"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for an entrypoint outcome.
func ObserveJob(entrypoint, status string) {
	Init()
	jobsTotal.WithLabelValues(entrypoint, status).Inc()
}

// ObservePhase records how long a pipeline phase took.
func ObservePhase(phase string, err error, duration time.Duration) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	phaseDurationSeconds.WithLabelValues(phase, outcome).Observe(duration.Seconds())
}

// ObserveSummary counts one page summarization attempt.
func ObserveSummary(status string) {
	Init()
	pageSummariesTotal.WithLabelValues(status).Inc()
}

// ObserveExtraction counts one page extraction outcome.
func ObserveExtraction(site, status string) {
	Init()
	pagesExtractedTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
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

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(key).Observe(duration.Seconds())
}
