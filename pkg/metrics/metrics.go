package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_auth_attempts_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"result"},
	)

	// GuardDecisions counts route guard outcomes by terminal state (guest|authorized|forbidden).
	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_guard_decisions_total",
			Help: "Total number of route guard decisions",
		},
		[]string{"state"},
	)

	// ActiveSessions tracks sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsdash_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// RealtimeConnections tracks open websocket connections on the realtime hub.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsdash_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)

	// NotificationEvents counts notification writes by event (created|updated|read_all|cleared|deleted).
	NotificationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_notification_events_total",
			Help: "Total number of notification mutations",
		},
		[]string{"event"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdash_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
