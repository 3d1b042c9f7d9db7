// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal tracks messages dispatched to the retrieval backend.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asistente_messages_total",
			Help: "Total chat messages processed",
		},
		[]string{"role"},
	)

	// StreamDuration tracks chat stream duration end to end.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asistente_stream_duration_seconds",
			Help:    "Chat stream duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"status"},
	)

	// QuotaBlockedTotal counts sends blocked by the quota gate.
	QuotaBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "asistente_quota_blocked_total",
			Help: "Sends blocked because the monthly query quota was exhausted",
		},
	)

	// ConnectRequestsTotal counts lawyer contact requests created.
	ConnectRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "asistente_connect_requests_total",
			Help: "Total Connect contact requests created",
		},
	)

	// SSEConnectionsActive tracks active streaming connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "asistente_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordStream records one completed (or failed) chat stream.
func RecordStream(status string, seconds float64) {
	StreamDuration.WithLabelValues(status).Observe(seconds)
}
