// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package middleware

import (
	"context"
	"net/http"

	"github.com/tomtom215/parley/internal/logging"
)

// RequestIDHeader is the header carrying the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds an upstream-supplied ID before it reaches the logs.
const maxRequestIDLen = 128

// RequestID middleware assigns each request an ID, adds it to the response
// header and records it as the correlation ID for logging.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ctx context.Context
		if requestID := r.Header.Get(RequestIDHeader); requestID != "" && len(requestID) <= maxRequestIDLen {
			ctx = logging.ContextWithCorrelationID(r.Context(), requestID)
		} else {
			ctx = logging.ContextWithNewCorrelationID(r.Context())
		}

		w.Header().Set(RequestIDHeader, logging.CorrelationIDFromContext(ctx))
		next(w, r.WithContext(ctx))
	}
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	return logging.CorrelationIDFromContext(ctx)
}
