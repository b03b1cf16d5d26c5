// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/protocol"
	"github.com/tomtom215/parley/internal/registry"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// setupClientServer upgrades every request and runs a Client for it. The
// registry connection is handed to the test through conns.
func setupClientServer(t *testing.T, limits Limits, onFrame FrameHandler) (*httptest.Server, <-chan *registry.Conn) {
	t.Helper()
	conns := make(chan *registry.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		conn := registry.NewConn("u1", 8, time.Now())
		conns <- conn
		NewClient(ws, conn, limits, onFrame).Run(context.Background())
	}))
	t.Cleanup(server.Close)
	return server, conns
}

// dialWebSocket establishes a WebSocket connection to the test server
func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitConn(t *testing.T, conns <-chan *registry.Conn) *registry.Conn {
	t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
		return nil
	}
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.WriteWait != 10*time.Second || l.PongWait != 60*time.Second || l.MaxMessageSize != 512*1024 {
		t.Errorf("DefaultLimits() = %+v", l)
	}
	if got := l.pingPeriod(); got != 54*time.Second {
		t.Errorf("pingPeriod() = %v, want 54s", got)
	}
	if got := (Limits{}).withDefaults(); got.WriteWait != writeWait || got.PongWait != pongWait || got.MaxMessageSize != maxMessageSize {
		t.Errorf("withDefaults() = %+v", got)
	}
}

func TestClient_ReadPump_DeliversFrames(t *testing.T) {
	frames := make(chan string, 4)
	server, _ := setupClientServer(t, DefaultLimits(), func(_ context.Context, frame []byte) {
		frames <- string(frame)
	})
	conn := dialWebSocket(t, server)

	for _, msg := range []string{`{"type":"TYPING"}`, `{"type":"READ"}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}

	for _, want := range []string{`{"type":"TYPING"}`, `{"type":"READ"}`} {
		select {
		case got := <-frames:
			if got != want {
				t.Errorf("frame = %s, want %s", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("frame %s not delivered", want)
		}
	}
}

func TestClient_ReadPump_IgnoresBinaryFrames(t *testing.T) {
	frames := make(chan string, 4)
	server, _ := setupClientServer(t, DefaultLimits(), func(_ context.Context, frame []byte) {
		frames <- string(frame)
	})
	conn := dialWebSocket(t, server)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("text")); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-frames:
		if got != "text" {
			t.Errorf("first delivered frame = %q, want text", got)
		}
	case <-time.After(time.Second):
		t.Fatal("text frame not delivered")
	}
}

func TestClient_ReadPump_RateLimit(t *testing.T) {
	frames := make(chan string, 16)
	limits := DefaultLimits()
	limits.InboundRate = 0.001 // effectively no refill during the test
	limits.InboundBurst = 2

	server, _ := setupClientServer(t, limits, func(_ context.Context, frame []byte) {
		frames <- string(frame)
	})
	conn := dialWebSocket(t, server)

	for i := 0; i < 5; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(300 * time.Millisecond)
	count := 0
	for {
		select {
		case <-frames:
			count++
		case <-deadline:
			if count != 2 {
				t.Errorf("delivered %d frames, want burst of 2", count)
			}
			return
		}
	}
}

func TestClient_WritePump_SendsQueuedFrames(t *testing.T) {
	server, conns := setupClientServer(t, DefaultLimits(), func(context.Context, []byte) {})
	conn := dialWebSocket(t, server)

	rc := waitConn(t, conns)
	reg := registry.New()
	reg.Register(rc)
	reg.SendTo("u1", protocol.Status(protocol.StatusEvent{UserID: "u2", IsOnline: true}))

	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if want := `{"type":"STATUS","payload":{"userId":"u2","isOnline":true}}`; string(frame) != want {
		t.Errorf("frame = %s, want %s", frame, want)
	}
}

func TestClient_ConnCloseSendsCloseFrame(t *testing.T) {
	server, conns := setupClientServer(t, DefaultLimits(), func(context.Context, []byte) {})
	conn := dialWebSocket(t, server)

	waitConn(t, conns).Close()

	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage() error = %v, want normal close", err)
	}
}

func TestClient_RunReturnsWhenPeerLeaves(t *testing.T) {
	returned := make(chan struct{})
	conns := make(chan *registry.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		rc := registry.NewConn("u1", 8, time.Now())
		conns <- rc
		NewClient(ws, rc, DefaultLimits(), func(context.Context, []byte) {}).Run(context.Background())
		close(returned)
	}))
	defer server.Close()

	conn := dialWebSocket(t, server)
	rc := waitConn(t, conns)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after the peer disconnected")
	}

	// The registry connection is closed once the socket is gone.
	if _, ok := <-rc.Outbound(); ok {
		t.Error("outbound queue still open")
	}
}
