// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/protocol"
	"github.com/tomtom215/parley/internal/registry"
	"github.com/tomtom215/parley/internal/websocket"
)

// closeTimeout bounds the disconnect side effects, which run after the
// request context may already be gone.
const closeTimeout = 10 * time.Second

// Sessions owns the lifecycle of authenticated sockets.
type Sessions struct {
	handler    *Handler
	registry   *registry.Registry
	limits     websocket.Limits
	sendBuffer int

	active sync.WaitGroup
}

// NewSessions creates the connection lifecycle manager.
func NewSessions(handler *Handler, reg *registry.Registry, limits websocket.Limits, sendBuffer int) *Sessions {
	return &Sessions{handler: handler, registry: reg, limits: limits, sendBuffer: sendBuffer}
}

// Serve runs an upgraded socket for userID until it closes.
func (s *Sessions) Serve(ctx context.Context, ws *gorillaws.Conn, userID string) {
	s.active.Add(1)
	defer s.active.Done()

	conn := s.Open(ctx, userID)
	ctx = s.connContext(ctx, conn)

	client := websocket.NewClient(ws, conn, s.limits, func(ctx context.Context, frame []byte) {
		s.HandleFrame(ctx, userID, frame)
	})
	client.Run(ctx)

	s.Close(ctx, conn)
}

// Wait blocks until every served socket has closed and run its disconnect
// side effects.
func (s *Sessions) Wait() {
	s.active.Wait()
}

// connContext tags ctx with the connection's correlation ID, its user and a
// gateway component logger.
func (s *Sessions) connContext(ctx context.Context, conn *registry.Conn) context.Context {
	ctx = logging.ContextWithLogger(ctx, logging.WithComponent("gateway"))
	ctx = logging.ContextWithCorrelationID(ctx, fmt.Sprintf("conn-%d", conn.ID()))
	return logging.ContextWithUserID(ctx, conn.UserID())
}

// Open registers a new connection for userID and runs the connect side effects.
func (s *Sessions) Open(ctx context.Context, userID string) *registry.Conn {
	conn := registry.NewConn(userID, s.sendBuffer, s.handler.opts.Now())
	first := s.registry.Register(conn)
	metrics.SetConnectionCounts(s.registry.Connections(), s.registry.ConnectedUsers())

	ctx = s.connContext(ctx, conn)
	logging.Ctx(ctx).Info().Bool("first", first).Msg("Socket opened")

	if err := s.handler.Connected(ctx, userID, first); err != nil {
		s.report(ctx, "connect", err)
	}
	return conn
}

// Close unregisters conn and runs the disconnect side effects.
func (s *Sessions) Close(ctx context.Context, conn *registry.Conn) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	last := s.registry.Unregister(conn)
	conn.Close()
	metrics.SetConnectionCounts(s.registry.Connections(), s.registry.ConnectedUsers())
	logging.Ctx(ctx).Info().Bool("last", last).Dur("duration", time.Since(conn.ConnectedAt())).Msg("Socket closed")

	if err := s.handler.Disconnected(ctx, conn.UserID(), last); err != nil {
		s.report(ctx, "disconnect", err)
	}
}

// HandleFrame parses and executes one inbound frame. Errors of every kind are
// logged and the socket stays open; only transport failures end a connection.
func (s *Sessions) HandleFrame(ctx context.Context, userID string, frame []byte) {
	in, err := protocol.Parse(frame)
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			metrics.ProtocolErrors.WithLabelValues(string(perr.Reason)).Inc()
		}
		logging.Ctx(ctx).Warn().Err(err).Str("frame", logging.SanitizeContent(string(frame), 120)).Msg("Ignoring bad frame")
		return
	}
	metrics.WSFramesReceived.WithLabelValues(string(in.Type)).Inc()

	start := time.Now()
	err = s.handler.Handle(ctx, userID, in)

	kind := ""
	if err != nil {
		kind = KindOf(err).String()
	}
	metrics.RecordHandled(string(in.Type), kind, time.Since(start))
	if err != nil {
		s.report(ctx, string(in.Type), err)
	}
}

// report logs err at a level matching its kind.
func (s *Sessions) report(ctx context.Context, op string, err error) {
	log := logging.Ctx(ctx)
	switch KindOf(err) {
	case KindProtocol, KindFanout:
		log.Warn().Err(err).Str("op", op).Msg("Operation incomplete")
	default:
		log.Error().Err(err).Str("op", op).Msg("Operation failed")
	}
}
