// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/parley/internal/metrics"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{name: "generates new id", incoming: ""},
		{name: "preserves upstream id", incoming: "edge-1234", wantSame: true},
		{name: "replaces oversized id", incoming: strings.Repeat("x", maxRequestIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var captured string
			h := RequestID(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got != captured {
				t.Errorf("header %q != context %q", got, captured)
			}
			if tt.wantSame {
				if got != tt.incoming {
					t.Errorf("request id = %q, want %q", got, tt.incoming)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("generated id %q is not a UUID: %v", got, err)
			}
		})
	}
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/conversations/{peerId}/messages", PrometheusMetrics(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/conversations/{peerId}/messages", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/u-42/messages", nil))

	after := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/conversations/{peerId}/messages", "418"))
	if after-before != 1 {
		t.Errorf("request counter moved by %v, want 1", after-before)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRoutePatternUnmatched(t *testing.T) {
	t.Parallel()

	if got := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); got != "unmatched" {
		t.Errorf("routePattern() = %q", got)
	}
}
