// Package metrics provides Prometheus metrics for the room sync client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "sharetube"
	subsystem = "client"
)

var (
	// PollsTotal counts room state refreshes by result.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "polls_total",
			Help:      "Total number of room state refreshes",
		},
		[]string{"result"},
	)

	// PollDuration tracks the latency of room state fetches.
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_duration_seconds",
			Help:      "Duration of room state fetches",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// ReconcilePassesTotal counts reconciliation passes by outcome.
	ReconcilePassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconcile_passes_total",
			Help:      "Total number of reconciliation passes",
		},
		[]string{"outcome"},
	)

	// CorrectionsTotal counts corrective transport commands by kind.
	CorrectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "corrections_total",
			Help:      "Total number of corrective transport commands",
		},
		[]string{"kind"},
	)

	// Drift tracks the observed distance between local and room playheads.
	Drift = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "drift_seconds",
			Help:      "Observed playhead drift from the room",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// ActionsTotal counts user actions by category and result.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "actions_total",
			Help:      "Total number of user actions",
		},
		[]string{"category", "result"},
	)

	// ActiveSession is 1 while a session is active.
	ActiveSession = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_session",
			Help:      "Whether a room session is active",
		},
	)
)

// Result labels shared by the counters.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultTransient = "transient"
	ResultNotFound  = "not_found"
	ResultDropped   = "dropped"
	ResultDiscarded = "discarded"
	ResultRejected  = "rejected"
)

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
