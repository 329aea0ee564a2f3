// Package metrics exposes Prometheus collectors for the archiver.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	archiveOutcomesTotal      *prometheus.CounterVec
	archiveBytesTotal         *prometheus.CounterVec
	fetchDurationSeconds      *prometheus.HistogramVec
	archivePermanentTotal     prometheus.Counter
	archiveActiveWorkers      prometheus.Gauge
	archiveRunDurationSeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archiveOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_outcomes_total",
				Help: "Total number of per-URL outcomes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		archiveBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_bytes_total",
				Help: "Total number of HTML bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by fetcher mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 45},
			},
			[]string{"mode"},
		)

		archivePermanentTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_permanent_failures_total",
				Help: "Total URLs that crossed the permanent failure threshold.",
			},
		)

		archiveActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archive_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		archiveRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archive_run_duration_seconds",
				Help:    "Histogram of whole-run durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
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

// ObserveOutcome increments the outcome counter.
func ObserveOutcome(outcome string) {
	archiveOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records fetch size and latency for a site.
func ObserveFetch(site, mode string, bytesFetched int, duration time.Duration) {
	if bytesFetched > 0 {
		archiveBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObservePermanent increments the permanent failure counter.
func ObservePermanent() {
	archivePermanentTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	archiveActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	archiveActiveWorkers.Dec()
}

// ObserveRunDuration records the duration of a completed run.
func ObserveRunDuration(duration time.Duration) {
	archiveRunDurationSeconds.Observe(duration.Seconds())
}
