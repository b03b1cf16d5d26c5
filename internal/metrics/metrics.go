// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_websocket_connections",
			Help: "Current number of open WebSocket connections on this instance",
		},
	)

	WSConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_websocket_connected_users",
			Help: "Current number of distinct users with at least one local connection",
		},
	)

	WSFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_websocket_frames_received_total",
			Help: "Total number of inbound envelopes by type",
		},
		[]string{"type"},
	)

	WSFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_websocket_frames_sent_total",
			Help: "Total number of outbound envelopes queued by type",
		},
		[]string{"type"},
	)

	WSFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_websocket_frames_dropped_total",
			Help: "Total number of outbound frames dropped because a socket queue was full",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_websocket_errors_total",
			Help: "Total number of WebSocket transport errors",
		},
		[]string{"error_type"}, // "upgrade", "read", "write", "rate_limited"
	)

	// Protocol Metrics
	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_protocol_errors_total",
			Help: "Total number of malformed or unsupported inbound envelopes",
		},
		[]string{"reason"},
	)

	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_handler_errors_total",
			Help: "Total number of failed envelope operations by error kind",
		},
		[]string{"op", "kind"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_handler_duration_seconds",
			Help:    "Duration of envelope handling in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op"},
	)

	// Fan-out Metrics
	FanoutPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_fanout_published_total",
			Help: "Total number of fan-out payloads published",
		},
		[]string{"driver", "channel"},
	)

	FanoutReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_fanout_received_total",
			Help: "Total number of fan-out payloads received",
		},
		[]string{"driver", "channel"},
	)

	FanoutErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_fanout_errors_total",
			Help: "Total number of fan-out failures",
		},
		[]string{"driver", "stage"}, // stage: "publish", "decode", "handler", "listen"
	)

	FanoutReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_fanout_listener_reconnects_total",
			Help: "Total number of listener reconnect attempts",
		},
		[]string{"driver"},
	)

	FanoutConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parley_fanout_listener_connected",
			Help: "Whether the fan-out listener is connected (1) or not (0)",
		},
		[]string{"driver"},
	)

	// Auth Metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_auth_attempts_total",
			Help: "Total number of authentication attempts by method and result",
		},
		[]string{"method", "result"}, // result: "success", "no_credentials", "invalid", "expired", "unavailable"
	)

	JWKSRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_jwks_refreshes_total",
			Help: "Total number of JWKS fetches",
		},
		[]string{"result"},
	)

	// Assistant Metrics
	AssistantRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_assistant_requests_total",
			Help: "Total number of assistant reply generations",
		},
		[]string{"result"}, // "success", "fallback", "unconfigured"
	)

	AssistantDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parley_assistant_duration_seconds",
			Help:    "Duration of assistant completions in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parley_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Application Info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parley_app_info",
			Help: "Application version information",
		},
		[]string{"version", "go_version"},
	)
)

// SetConnectionCounts publishes the registry's current sizes.
func SetConnectionCounts(connections, users int) {
	WSConnections.Set(float64(connections))
	WSConnectedUsers.Set(float64(users))
}

// RecordHandled records one envelope operation and its outcome.
// kind is empty on success.
func RecordHandled(op, kind string, duration time.Duration) {
	HandlerDuration.WithLabelValues(op).Observe(duration.Seconds())
	if kind != "" {
		HandlerErrors.WithLabelValues(op, kind).Inc()
	}
}

// RecordPublish records a fan-out publish attempt.
func RecordPublish(driver, channel string, err error) {
	if err != nil {
		FanoutErrors.WithLabelValues(driver, "publish").Inc()
		return
	}
	FanoutPublished.WithLabelValues(driver, channel).Inc()
}

// SetListenerConnected flips the listener gauge for a driver.
func SetListenerConnected(driver string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	FanoutConnected.WithLabelValues(driver).Set(v)
}

// RecordAuth records the outcome of one authentication attempt.
func RecordAuth(method, result string) {
	AuthAttempts.WithLabelValues(method, result).Inc()
}

// RecordAssistant records one assistant generation.
func RecordAssistant(result string, duration time.Duration) {
	AssistantRequests.WithLabelValues(result).Inc()
	if duration > 0 {
		AssistantDuration.Observe(duration.Seconds())
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
