// Package metrics provides Prometheus metrics for the messaging service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results recorded by the notifier.
const (
	DeliveryDelivered = "delivered"
	DeliveryOffline   = "offline"
	DeliveryFailed    = "failed"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Messaging metrics
	MessagesPersistedTotal      prometheus.Counter
	ConversationsTotal          *prometheus.CounterVec
	NotificationDeliveriesTotal *prometheus.CounterVec
	NotificationDispatchErrors  prometheus.Counter

	// Presence metrics
	WebSocketConnections prometheus.Gauge
}

// NewMetrics creates the service metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusmarket_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusmarket_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.MessagesPersistedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "campusmarket_messages_persisted_total",
			Help: "Total number of messages durably stored",
		},
	)

	m.ConversationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusmarket_conversations_total",
			Help: "Conversation lookups by outcome (created or reused)",
		},
		[]string{"result"},
	)

	m.NotificationDeliveriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusmarket_notification_deliveries_total",
			Help: "Per-recipient new_message deliveries by result",
		},
		[]string{"result"},
	)

	m.NotificationDispatchErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "campusmarket_notification_dispatch_errors_total",
			Help: "Notifications that could not be handed off or built",
		},
	)

	m.WebSocketConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "campusmarket_websocket_connections",
			Help: "Number of registered real-time connections",
		},
	)

	return m
}

// RecordHTTPRequest records a finished HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordMessagePersisted() {
	if m == nil {
		return
	}
	m.MessagesPersistedTotal.Inc()
}

func (m *Metrics) RecordConversation(created bool) {
	if m == nil {
		return
	}
	result := "reused"
	if created {
		result = "created"
	}
	m.ConversationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDelivery(result string) {
	if m == nil {
		return
	}
	m.NotificationDeliveriesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDispatchError() {
	if m == nil {
		return
	}
	m.NotificationDispatchErrors.Inc()
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.WebSocketConnections.Set(float64(n))
}
