// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/protocol"
)

const writeWait = 10 * time.Second

// ErrNotConnected is returned by the Send helpers while no socket is open.
var ErrNotConnected = errors.New("client: not connected")

// CredentialSource supplies a fresh bearer token for each connection attempt.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f CredentialFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a CredentialSource that always returns the same token.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no token configured")
	}
	return string(s), nil
}

// Options tunes a Reconnector.
type Options struct {
	Clock  Clock
	Dialer *websocket.Dialer

	// OnOpen runs after each successful open.
	OnOpen func()

	// OnRetry runs before each wait with the attempt number, the delay and
	// the error that ended the previous attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Reconnector keeps one gateway connection open.
type Reconnector struct {
	endpoint string
	creds    CredentialSource
	onEvent  func(protocol.Envelope)
	opts     Options

	mu    sync.Mutex
	conn  *websocket.Conn
	state Backoff
}

// NewReconnector creates a Reconnector for the gateway at baseURL
// (ws:// or wss://, with or without the /ws path). onEvent receives every
// inbound envelope from the read goroutine.
func NewReconnector(baseURL string, creds CredentialSource, onEvent func(protocol.Envelope), opts Options) (*Reconnector, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported gateway url scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	}
	u.RawQuery = ""

	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		}
	}
	if onEvent == nil {
		onEvent = func(protocol.Envelope) {}
	}
	return &Reconnector{endpoint: u.String(), creds: creds, onEvent: onEvent, opts: opts}, nil
}

// State returns the current backoff state.
func (r *Reconnector) State() Backoff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Connected reports whether a socket is open.
func (r *Reconnector) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Run connects and reconnects until ctx is canceled.
func (r *Reconnector) Run(ctx context.Context) error {
	for {
		err := r.connectOnce(ctx)
		if ctx.Err() != nil {
			logging.Info().Msg("[client] Reconnector stopping (context canceled)")
			return nil
		}

		r.mu.Lock()
		next, delay := r.state.Failed()
		r.state = next
		r.mu.Unlock()

		logging.Warn().Err(err).Int("attempt", next.Attempt).Dur("delay", delay).Msg("[client] Connection lost, reconnecting")
		if r.opts.OnRetry != nil {
			r.opts.OnRetry(next.Attempt, delay, err)
		}

		if err := r.wait(ctx, delay); err != nil {
			return nil
		}
	}
}

func (r *Reconnector) wait(ctx context.Context, d time.Duration) error {
	fired := make(chan struct{})
	timer := r.opts.Clock.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

// connectOnce runs one connection from credential fetch to close.
func (r *Reconnector) connectOnce(ctx context.Context) error {
	token, err := r.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetch credential: %w", err)
	}

	conn, resp, err := r.opts.Dialer.DialContext(ctx, r.endpoint+"?token="+url.QueryEscape(token), nil)
	if resp != nil && resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("[client] Failed to close handshake response body")
		}
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.state = r.state.Opened(r.opts.Clock.Now())
	r.mu.Unlock()

	logging.Info().Str("url", r.endpoint).Msg("[client] Connected")
	if r.opts.OnOpen != nil {
		r.opts.OnOpen()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("closed by server: %w", err)
			}
			return fmt.Errorf("read: %w", err)
		}

		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil || env.Type == "" {
			logging.Warn().Err(err).Msg("[client] Dropping malformed frame")
			continue
		}
		r.onEvent(env)
	}
}

// Send writes one envelope to the open socket.
func (r *Reconnector) Send(out protocol.Outgoing) error {
	data, err := protocol.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode %s: %w", out.Type, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return ErrNotConnected
	}
	if err := r.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", out.Type, err)
	}
	return nil
}

// Chat sends a CHAT.
func (r *Reconnector) Chat(receiverID, content, tempID string) error {
	return r.Send(protocol.Outgoing{Type: protocol.TypeChat, Payload: protocol.ChatRequest{
		ReceiverID: receiverID, Content: content, TempID: tempID,
	}})
}

// Typing sends a TYPING.
func (r *Reconnector) Typing(receiverID string, isTyping bool) error {
	return r.Send(protocol.Outgoing{Type: protocol.TypeTyping, Payload: protocol.TypingRequest{
		ReceiverID: receiverID, IsTyping: isTyping,
	}})
}

// Read sends a READ for the conversation with peerID.
func (r *Reconnector) Read(peerID string) error {
	return r.Send(protocol.Outgoing{Type: protocol.TypeRead, Payload: protocol.ReadRequest{PeerID: peerID}})
}

// React sends a REACTION.
func (r *Reconnector) React(messageID, emoji string, action models.ReactionAction) error {
	return r.Send(protocol.Outgoing{Type: protocol.TypeReaction, Payload: protocol.ReactionRequest{
		MessageID: messageID, Emoji: emoji, Action: action,
	}})
}
