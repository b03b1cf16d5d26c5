// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/parley/internal/middleware"
)

// Router wires the handler and middleware into a chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	// ========================
	// WebSocket Gateway
	// ========================
	// Authentication happens inside the handler so a plain GET still answers
	// "WebSocket Server" and failures answer a plain-text 401.
	r.Get("/ws", router.handler.WebSocket)

	// ========================
	// Health and Metrics
	// ========================
	r.Get("/healthz", router.handler.HealthLive)
	r.Get("/readyz", router.handler.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	// ========================
	// REST API
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(Authenticate(router.handler.authn))

		r.Get("/peers/{peerId}/messages", router.handler.ConversationHistory)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/read", router.handler.MarkRead)
			r.Post("/archive", router.handler.Archive)
			r.Post("/unarchive", router.handler.Unarchive)
			r.Post("/{id}/pin", router.handler.TogglePin)
			r.Post("/{id}/mute", router.handler.ToggleMute)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	})

	return r
}
