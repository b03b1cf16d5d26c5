// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package middleware provides HTTP middleware shared by the gateway's routes.

Key Components:

  - Request ID: reuses X-Request-ID from an upstream proxy or generates a
    UUID, echoes it in the response and stores it as the logging
    correlation ID
  - Prometheus Metrics: request counts and latency per route pattern

Both are plain http.HandlerFunc wrappers; the api package adapts them to chi.

Usage Example:

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chiMiddleware(middleware.PrometheusMetrics))
*/
package middleware
