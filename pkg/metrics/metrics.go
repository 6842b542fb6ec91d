// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SessionsActive tracks active websocket chat sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Number of active websocket chat sessions",
		},
	)

	// MessagesPersisted tracks messages written to the store.
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Total messages persisted to the store",
		},
	)

	// NotificationsDelivered tracks bridge events forwarded to clients.
	NotificationsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_notifications_delivered_total",
			Help: "Total notifications forwarded to websocket clients",
		},
	)

	// NotificationsDiscarded tracks bridge events dropped per reason
	// (self-authored echo suppression or malformed payloads).
	NotificationsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notifications_discarded_total",
			Help: "Total notifications discarded before delivery",
		},
		[]string{"reason"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_conversations_total",
			Help: "Total conversations created",
		},
	)

	// ChatCodesIssued tracks total chat codes issued.
	ChatCodesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_codes_issued_total",
			Help: "Total chat codes issued",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementSessions increments the active session count.
func IncrementSessions() {
	SessionsActive.Inc()
}

// DecrementSessions decrements the active session count.
func DecrementSessions() {
	SessionsActive.Dec()
}
