// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512 * 1024 // 512 KB
)

// Limits bounds one socket.
type Limits struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64

	// InboundRate is the sustained number of frames per second a client may
	// send; InboundBurst is the bucket size. A zero rate disables the limit.
	InboundRate  float64
	InboundBurst int
}

// DefaultLimits returns the limits used when configuration leaves them unset.
func DefaultLimits() Limits {
	return Limits{
		WriteWait:      writeWait,
		PongWait:       pongWait,
		MaxMessageSize: maxMessageSize,
		InboundRate:    20,
		InboundBurst:   40,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.WriteWait <= 0 {
		l.WriteWait = d.WriteWait
	}
	if l.PongWait <= 0 {
		l.PongWait = d.PongWait
	}
	if l.MaxMessageSize <= 0 {
		l.MaxMessageSize = d.MaxMessageSize
	}
	return l
}

// pingPeriod must be shorter than PongWait.
func (l Limits) pingPeriod() time.Duration {
	return (l.PongWait * 9) / 10
}

// FrameHandler processes one inbound text frame. It runs on the read goroutine,
// so frames from one socket are handled in order.
type FrameHandler func(ctx context.Context, frame []byte)

// Client is a middleman between the websocket connection and the registry.
type Client struct {
	ws      *websocket.Conn
	conn    *registry.Conn
	limits  Limits
	limiter *rate.Limiter
	onFrame FrameHandler
}

// NewClient binds ws to conn.
func NewClient(ws *websocket.Conn, conn *registry.Conn, limits Limits, onFrame FrameHandler) *Client {
	limits = limits.withDefaults()
	limiter := rate.NewLimiter(rate.Inf, 0)
	if limits.InboundRate > 0 {
		burst := limits.InboundBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(limits.InboundRate), burst)
	}
	return &Client{ws: ws, conn: conn, limits: limits, limiter: limiter, onFrame: onFrame}
}

// Run starts the write pump and reads until the socket fails or the registry
// connection is closed. Both pumps have exited when Run returns.
func (c *Client) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump(ctx)
	}()

	c.readPump(ctx)
	c.conn.Close()
	<-done
}

// readPump pumps frames from the websocket connection to the frame handler.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		_ = c.ws.Close() // best-effort cleanup
	}()

	log := logging.Ctx(ctx)

	c.ws.SetReadLimit(c.limits.MaxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.limits.PongWait)); err != nil {
		log.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.limits.PongWait))
	})

	for {
		messageType, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				log.Warn().Err(err).Msg("unexpected websocket close error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			metrics.ProtocolErrors.WithLabelValues("binary_frame").Inc()
			continue
		}
		if !c.limiter.Allow() {
			metrics.ProtocolErrors.WithLabelValues("rate_limited").Inc()
			log.Warn().Int("bytes", len(frame)).Msg("Inbound frame over rate limit, dropped")
			continue
		}
		c.onFrame(ctx, frame)
	}
}

// writePump pumps frames from the registry queue to the websocket connection.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.limits.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close() // best-effort cleanup
	}()

	log := logging.Ctx(ctx)
	outbound := c.conn.Outbound()

	for {
		select {
		case frame, ok := <-outbound:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.limits.WriteWait)); err != nil {
				log.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The registry closed the connection.
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				log.Debug().Err(err).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.limits.WriteWait)); err != nil {
				log.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
