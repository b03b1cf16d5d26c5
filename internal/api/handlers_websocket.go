// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

// WebSocket authenticates and upgrades a gateway connection.
//
// Credentials come from ?token=<jwt> first, then the session cookie. The
// socket is served on this goroutine until it closes.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writePlain(w, http.StatusOK, "WebSocket Server")
		return
	}

	subject, err := h.authn.Authenticate(r.Context(), r)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket authentication failed")
		writePlain(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered through upgradeError.
		metrics.WSErrors.WithLabelValues("upgrade").Inc()
		logging.Ctx(r.Context()).Error().Err(err).Str("user_id", subject.ID).Msg("WebSocket upgrade failed")
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("user_id", subject.ID).
		Str("auth_method", subject.AuthMethod.String()).
		Msg("WebSocket connected")

	// The socket outlives the request; shutdown closes it through the registry.
	h.sessions.Serve(context.WithoutCancel(r.Context()), ws, subject.ID)
}

// upgradeError answers a failed handshake with 500.
func upgradeError(w http.ResponseWriter, _ *http.Request, status int, reason error) {
	logging.Debug().Int("handshake_status", status).Err(reason).Msg("WebSocket handshake rejected")
	writePlain(w, http.StatusInternalServerError, "Internal Server Error")
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests from the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
