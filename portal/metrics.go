package portal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transport metrics
var (
	// RequestsTotal tracks portal REST requests by operation and outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoportal_requests_total",
			Help: "Total portal REST requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RequestDuration tracks portal REST request latency in seconds
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geoportal_request_duration_seconds",
			Help:    "Portal REST request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// TokenRefreshesTotal tracks token acquisitions by outcome
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoportal_token_refreshes_total",
			Help: "Total token acquisitions by status",
		},
		[]string{"status"},
	)

	// BreakerStateChanges tracks circuit breaker state transitions
	BreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoportal_circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by breaker and new state",
		},
		[]string{"breaker", "state"},
	)
)

// Job poll metrics
var (
	// JobPollsTotal tracks job status polls by observed status
	JobPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoportal_job_polls_total",
			Help: "Total job status polls by observed job status",
		},
		[]string{"status"},
	)

	// JobsCompletedTotal tracks finished jobs by terminal status
	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoportal_jobs_completed_total",
			Help: "Total jobs reaching a terminal status",
		},
		[]string{"status"},
	)
)
