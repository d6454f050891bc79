package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// WebSocket specific metrics
	wsConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	// Presence metrics
	presenceUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_updates_total",
			Help: "Total number of presence state updates fanned out",
		},
		[]string{"status"},
	)

	presenceSweepEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_sweep_evictions_total",
			Help: "Total number of users demoted to offline by the TTL sweeper",
		},
	)

	// Voice room metrics
	voiceRoomParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_room_active_participants",
			Help: "Number of active voice room participants",
		},
	)

	voiceTransmissionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_transmissions_total",
			Help: "Total number of voice transmissions relayed",
		},
	)

	// Message metrics
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total number of messages sent",
		},
		[]string{"type"},
	)

	messageReadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_reads_total",
			Help: "Total number of message read acknowledgments",
		},
	)
)

// MetricsMiddleware returns a Gin middleware that collects Prometheus metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpRequestsInFlight.Inc()

		c.Next()

		httpRequestsInFlight.Dec()
		duration := time.Since(start).Seconds()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns the Prometheus metrics handler for Gin
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordWebSocketConnection increments WebSocket connection counters
func RecordWebSocketConnection() {
	wsConnectionsTotal.Inc()
	wsActiveConnections.Inc()
}

// RecordWebSocketDisconnection decrements active WebSocket connection gauge
func RecordWebSocketDisconnection() {
	wsActiveConnections.Dec()
}

// RecordPresenceUpdate counts one fanned-out presence update
func RecordPresenceUpdate(status string) {
	presenceUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordPresenceSweepEviction counts one TTL demotion to offline
func RecordPresenceSweepEviction() {
	presenceSweepEvictions.Inc()
}

// RecordVoiceJoin increments the active voice participant gauge
func RecordVoiceJoin() {
	voiceRoomParticipants.Inc()
}

// RecordVoiceLeave decrements the active voice participant gauge
func RecordVoiceLeave() {
	voiceRoomParticipants.Dec()
}

// RecordVoiceTransmission counts one relayed transmission
func RecordVoiceTransmission() {
	voiceTransmissionsTotal.Inc()
}

// RecordMessageSent counts one sent message by type
func RecordMessageSent(messageType string) {
	messagesSentTotal.WithLabelValues(messageType).Inc()
}

// RecordMessageRead counts one read acknowledgment
func RecordMessageRead() {
	messageReadsTotal.Inc()
}
