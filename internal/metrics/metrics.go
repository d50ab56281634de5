package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colachat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "colachat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colachat_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colachat_messages_appended_total",
			Help: "Total messages appended",
		},
		[]string{"type"}, // CHAT, SYSTEM or ALERT
	)

	CapacityRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colachat_capacity_rejections_total",
			Help: "Joins and entry checks refused because the room was full",
		},
	)

	// Session metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "colachat_websocket_connections",
			Help: "Open websocket connections",
		},
	)

	OnlineParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "colachat_online_participants",
			Help: "Participants with at least one connection, summed over rooms",
		},
	)

	PendingLeaves = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "colachat_pending_leaves",
			Help: "Leave timers waiting out the grace period",
		},
	)

	LeavesCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colachat_leaves_committed_total",
			Help: "Grace periods that expired into a left notice",
		},
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colachat_dropped_frames_total",
			Help: "Outbound websocket frames dropped on a full send queue",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colachat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
