package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_http_requests_total",
			Help: "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timecapsule_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_sweep_runs_total",
			Help: "Sweep runs by sweep name and result (ok, error, skipped).",
		},
		[]string{"sweep", "result"},
	)

	SweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timecapsule_sweep_duration_seconds",
			Help:    "Sweep run duration.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"sweep"},
	)

	SweepRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timecapsule_sweep_records_total",
			Help: "Records handled by sweeps by outcome (succeeded, failed, skipped).",
		},
		[]string{"sweep", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, SweepRuns, SweepDuration, SweepRecords)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
