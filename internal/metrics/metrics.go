package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FaultsCaptured tracks captured faults per boundary.
	FaultsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boundary_faults_captured_total",
			Help: "Total number of faults captured",
		},
		[]string{"boundary", "classification", "severity"},
	)

	// Recoveries tracks recovery attempts per policy and outcome.
	Recoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boundary_recoveries_total",
			Help: "Total number of recovery attempts",
		},
		[]string{"boundary", "policy", "outcome"},
	)

	// ReporterFailures tracks reporter sink failures.
	ReporterFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boundary_reporter_failures_total",
			Help: "Total number of reporter delivery failures",
		},
		[]string{"reporter"},
	)

	// BoundaryFaulted exposes the current boundary state (1 = faulted).
	BoundaryFaulted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "boundary_faulted",
			Help: "Whether a boundary is currently in the faulted state",
		},
		[]string{"boundary"},
	)

	// RecoveryDelay observes the scheduled delay before recovery runs.
	RecoveryDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boundary_recovery_delay_seconds",
			Help:    "Scheduled delay before a recovery attempt",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"boundary", "policy"},
	)
)

// Recovery outcomes.
const (
	OutcomeRetried   = "retried"
	OutcomeReset     = "reset"
	OutcomeExhausted = "exhausted"
	OutcomeDeclined  = "declined"
	OutcomeStale     = "stale"
)
