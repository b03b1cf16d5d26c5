// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/database"
	"github.com/tomtom215/parley/internal/gateway"
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler contains dependencies for the HTTP handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct and constructor (this file)
//   - handlers_helpers.go: response and request helpers
//   - handlers_health.go: liveness and readiness probes
//   - handlers_websocket.go: the /ws upgrade
//   - handlers_conversations.go: REST conversation endpoints
type Handler struct {
	store     database.Store
	gateway   *gateway.Handler
	sessions  *gateway.Sessions
	authn     auth.Authenticator
	upgrader  websocket.Upgrader
	checks    []ReadinessCheck
	startTime time.Time
}

// HandlerDeps groups the collaborators of a Handler.
type HandlerDeps struct {
	Store         database.Store
	Gateway       *gateway.Handler
	Sessions      *gateway.Sessions
	Authenticator auth.Authenticator

	// AllowedOrigins restricts browser upgrades by Origin header. Empty or
	// "*" allows any origin.
	AllowedOrigins []string

	// Checks are probed by /readyz in addition to the store ping.
	Checks []ReadinessCheck
}

// NewHandler creates a new API handler.
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		store:     deps.Store,
		gateway:   deps.Gateway,
		sessions:  deps.Sessions,
		authn:     deps.Authenticator,
		startTime: time.Now(),
	}

	h.checks = append([]ReadinessCheck{{Name: "database", Check: deps.Store.Ping}}, deps.Checks...)
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      originChecker(deps.AllowedOrigins),
		Error:            upgradeError,
	}
	return h
}
