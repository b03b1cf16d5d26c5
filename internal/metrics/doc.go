// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry through promauto and are
exposed at /metrics on the WebSocket port:

	curl http://localhost:3001/metrics

# Available Metrics

WebSocket:
  - parley_websocket_connections, parley_websocket_connected_users (gauges)
  - parley_websocket_frames_received_total, parley_websocket_frames_sent_total
    Labels: type
  - parley_websocket_frames_dropped_total: frames skipped because a socket queue was full
  - parley_websocket_errors_total
    Labels: error_type

Protocol handling:
  - parley_protocol_errors_total
    Labels: reason
  - parley_handler_errors_total
    Labels: op, kind (protocol, persistence, fanout, collaborator)
  - parley_handler_duration_seconds
    Labels: op

Fan-out:
  - parley_fanout_published_total, parley_fanout_received_total
    Labels: driver, channel
  - parley_fanout_errors_total
    Labels: driver, stage
  - parley_fanout_listener_reconnects_total, parley_fanout_listener_connected
    Labels: driver

Auth and assistant:
  - parley_auth_attempts_total
    Labels: method, result
  - parley_jwks_refreshes_total
    Labels: result
  - parley_assistant_requests_total, parley_assistant_duration_seconds

Circuit breakers:
  - parley_circuit_breaker_state
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - parley_circuit_breaker_state_transitions_total
    Labels: name, from_state, to_state

# Thread Safety

All recording helpers are safe for concurrent use.
*/
package metrics
