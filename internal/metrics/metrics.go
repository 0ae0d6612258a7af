// Package metrics defines the Prometheus collectors shared across the
// application. Collectors are registered once via promauto at init time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bus metrics
var (
	// MessagesPublishedTotal tracks messages accepted by the bus per channel.
	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_published_total",
			Help: "Total messages published to the bus by channel",
		},
		[]string{"channel"},
	)

	// MessagesDeliveredTotal tracks successful handoffs to subscriber sinks.
	MessagesDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_messages_delivered_total",
			Help: "Total messages handed to subscriber sinks",
		},
	)

	// MessagesDroppedTotal tracks messages lost to full sinks by reason.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_dropped_total",
			Help: "Total messages dropped due to sink overflow by reason",
		},
		[]string{"reason"},
	)

	// ActiveSubscriptions tracks currently registered subscriptions.
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bus_active_subscriptions",
			Help: "Number of currently registered subscriptions",
		},
	)

	// SlowSubscribersEvicted tracks subscriptions closed for falling behind.
	SlowSubscribersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_slow_subscribers_evicted_total",
			Help: "Total subscriptions disconnected for falling behind",
		},
	)

	// BrokerPublishFailures tracks failed publishes to the external broker.
	BrokerPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_publish_failures_total",
			Help: "Total failed publish attempts against the external broker",
		},
	)

	// PubSubMessagesReceived tracks messages received from the external broker.
	PubSubMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_messages_received_total",
			Help: "Total messages received from broker pub/sub by channel",
		},
		[]string{"channel"},
	)
)

// Session metrics
var (
	// ActiveSessions tracks currently open subscriber sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_active_total",
			Help: "Number of currently open subscriber sessions",
		},
	)

	// SessionsClosedTotal tracks finished sessions by drain reason.
	SessionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_closed_total",
			Help: "Total closed sessions by drain reason",
		},
		[]string{"reason"},
	)

	// DuplicateDeliveriesSuppressed tracks frames skipped by ID dedupe.
	DuplicateDeliveriesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_duplicate_deliveries_suppressed_total",
			Help: "Total deliveries suppressed because the message ID was already sent",
		},
	)

	// WebSocketSendDuration tracks outbound frame write latency in seconds.
	WebSocketSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_send_duration_seconds",
			Help:    "WebSocket frame send duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings.
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed WebSocket keepalive pings",
		},
	)

	// WebSocketIdleDisconnects tracks connections closed for inactivity.
	WebSocketIdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_idle_disconnects_total",
			Help: "Total WebSocket connections closed due to idle timeout",
		},
	)
)

// Gateway metrics
var (
	// SubmissionsTotal tracks submission outcomes.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_submissions_total",
			Help: "Total message submissions by outcome",
		},
		[]string{"outcome"},
	)

	// ConnectionsRejectedTotal tracks WebSocket connects refused at capacity.
	ConnectionsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "server_connections_rejected_total",
			Help: "Total WebSocket connections rejected by the connection limiter",
		},
	)
)
