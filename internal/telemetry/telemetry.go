// Package telemetry holds the Prometheus collectors for a scrape run.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fid_proofs_fetch_attempts_total", Help: "Fetch attempts by outcome"},
		[]string{"outcome"},
	)
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "fid_proofs_fetch_duration_seconds", Help: "Fetch attempt latency", Buckets: prometheus.DefBuckets},
		[]string{"status"},
	)
	Persisted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fid_proofs_persisted_total", Help: "Records written to the store"},
	)
	StoreErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fid_proofs_store_errors_total", Help: "Store writes that failed and were dropped"},
	)
	Exhausted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fid_proofs_exhausted_total", Help: "Fids given up after the retry cap"},
	)
	TaskErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fid_proofs_task_errors_total", Help: "Tasks that ended in an unexpected error"},
	)
	Inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "fid_proofs_inflight", Help: "Tasks currently executing"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		FetchAttempts, FetchDuration, Persisted, StoreErrors, Exhausted, TaskErrors, Inflight,
		HTTPRequestsTotal, HTTPRequestDuration,
	)
}

// StatusLabel buckets an HTTP status code into its class. "none" means the
// attempt got no response (dial, timeout or read failure).
func StatusLabel(code int) string {
	switch {
	case code == 0:
		return "none"
	case code < 100 || code > 599:
		return "unknown"
	default:
		return strconv.Itoa(code/100) + "xx"
	}
}
