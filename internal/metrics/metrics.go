// Package metrics provides Prometheus metrics for the adaptive pattern core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QualityBoosts counts confirmed-usage score boosts.
	QualityBoosts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "quality",
			Name:      "boosts_total",
			Help:      "Total number of confirmed-usage score boosts",
		},
	)

	// DecayRuns counts decay job executions.
	DecayRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "quality",
			Name:      "decay_runs_total",
			Help:      "Total number of decay job executions",
		},
	)

	// DecayDropped counts patterns whose score crossed below the decay
	// threshold during a run.
	DecayDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "quality",
			Name:      "decay_dropped_total",
			Help:      "Total number of patterns dropped below the decay threshold",
		},
	)

	// Graduations counts approved level advancements.
	Graduations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "graduation",
			Name:      "approved_total",
			Help:      "Total number of approved graduations by target level",
		},
		[]string{"to_level"},
	)

	// SweepDuration tracks how long anomaly sweeps take.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "patternd",
			Subsystem: "anomaly",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of anomaly detection sweeps in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// AnomaliesDetected counts detected anomalies.
	// Labels: type (burst_creation, low_quality_flood, duplicate_spam),
	// severity (low, medium, high).
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "anomaly",
			Name:      "detected_total",
			Help:      "Total number of detected anomalies by type and severity",
		},
		[]string{"type", "severity"},
	)

	// RateLimitDecisions counts rate limiter verdicts.
	// Labels: decision (allowed, denied, degraded).
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total number of rate limit checks by decision",
		},
		[]string{"decision"},
	)

	// StoreRequests counts remote state store round trips.
	// Labels: outcome (ok, error).
	StoreRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patternd",
			Subsystem: "statestore",
			Name:      "requests_total",
			Help:      "Total number of remote state store requests by outcome",
		},
		[]string{"outcome"},
	)

	// StoreAvailable indicates current state store availability
	// (1=available, 0=degraded to defaults).
	StoreAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "patternd",
			Subsystem: "statestore",
			Name:      "available",
			Help:      "Current state store availability (1=available, 0=degraded)",
		},
	)
)
