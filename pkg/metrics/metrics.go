package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// HttpRequestsTotal counts HTTP requests, labeled by method, path and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmc_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gmc_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// RunsTotal counts clustering runs by outcome: "converged", "budget"
	// (iteration budget exhausted), "cancelled" or "error".
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmc_runs_total",
			Help: "Total number of clustering runs by outcome",
		},
		[]string{"outcome"},
	)

	// IterationsPerRun is the number of alternating iterations executed by a run.
	IterationsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmc_run_iterations",
			Help:    "Iterations executed per clustering run",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 30, 50, 100},
		},
	)

	// LambdaAdjustmentsTotal counts multiplier updates: "double", "halve", "keep".
	LambdaAdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmc_lambda_adjustments_total",
			Help: "Rank-penalty multiplier updates by action",
		},
		[]string{"action"},
	)

	// EigenDuration measures one collective eigen-decomposition.
	EigenDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmc_eigen_duration_seconds",
			Help:    "Duration of the symmetric eigen-decomposition in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
	)

	// ClustersFound is the number of connected components reported by a run.
	ClustersFound = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmc_clusters_found",
			Help:    "Connected components found in the final consensus graph",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10, 16, 32, 64},
		},
	)

	// ActiveTasks is the number of clustering tasks currently running in the
	// server. Queued tasks are not counted.
	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gmc_active_tasks",
			Help: "Clustering tasks currently running",
		},
	)
)
