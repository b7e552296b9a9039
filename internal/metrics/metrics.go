package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebSocket Connection Metrics
var (
	// ConnectionsCurrent tracks current active WebSocket connections
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// ConnectionsTotal tracks total WebSocket connection attempts by result
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (opened/auth_rejected/upgrade_error)",
		},
		[]string{"result"},
	)

	// ConnectionsRejected tracks rejected connection attempts by reason
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/global_limit/subprotocol)",
		},
		[]string{"reason"},
	)

	// ConnectionsReplaced tracks connections terminated because the same user reconnected
	ConnectionsReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_replaced_total",
			Help: "Total connections closed because a newer connection for the same user registered",
		},
	)

	// LivenessPruned tracks connections removed by the liveness monitor
	LivenessPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_liveness_pruned_total",
			Help: "Total connections pruned after missing a liveness probe response",
		},
	)

	// PingFailures tracks WebSocket ping write failures
	PingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)
)

// Dispatch Metrics
var (
	// MessagesDispatched tracks inbound frames by declared type and result
	MessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_total",
			Help: "Inbound frames by message type and result (handled/malformed/ignored/dropped)",
		},
		[]string{"type", "result"},
	)
)

// Broadcast Metrics
var (
	// BroadcastsTotal tracks broadcast calls by kind and result
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_calls_total",
			Help: "Broadcast calls by kind (user/role/project/all) and result (ok/aborted)",
		},
		[]string{"kind", "result"},
	)

	// BroadcastRecipients tracks recipients per broadcast call
	BroadcastRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_recipients",
			Help:    "Number of recipients per broadcast call",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// DeliveryDrops tracks messages dropped on the send path by reason
	DeliveryDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_drops_total",
			Help: "Messages dropped on the send path by reason (offline/not_open/buffer_full)",
		},
		[]string{"reason"},
	)

	// LookupFailures tracks external directory/resolver failures by entity
	LookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_lookup_failures_total",
			Help: "External directory lookup failures by entity (session/user/project)",
		},
		[]string{"entity"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)
