// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/parley/internal/protocol"
)

const waitTimeout = 5 * time.Second

func nextDelay(t *testing.T, clk *fakeClock) time.Duration {
	t.Helper()
	select {
	case d := <-clk.scheduled:
		return d
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a reconnect to be scheduled")
		return 0
	}
}

func TestNewReconnectorEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ws://localhost:3001", want: "ws://localhost:3001/ws"},
		{in: "ws://localhost:3001/ws?token=stale", want: "ws://localhost:3001/ws"},
		{in: "https://chat.example.com/", want: "wss://chat.example.com/ws"},
		{in: "http://10.0.0.1:3001/gateway", want: "ws://10.0.0.1:3001/gateway/ws"},
		{in: "ftp://example.com", wantErr: true},
	}
	for _, tt := range tests {
		r, err := NewReconnector(tt.in, StaticToken("t"), nil, Options{})
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewReconnector(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewReconnector(%q) error = %v", tt.in, err)
			continue
		}
		if r.endpoint != tt.want {
			t.Errorf("endpoint(%q) = %q, want %q", tt.in, r.endpoint, tt.want)
		}
	}
}

func TestReconnectorBacksOffOnCredentialFailure(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	clk.scheduled = make(chan time.Duration, 16)

	var retries []int
	creds := CredentialFunc(func(context.Context) (string, error) { return "", errors.New("signed out") })
	r, err := NewReconnector("ws://127.0.0.1:1", creds, nil, Options{
		Clock:   clk,
		OnRetry: func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) },
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		d := nextDelay(t, clk)
		if d != w {
			t.Errorf("retry %d delay = %v, want %v", i+1, d, w)
		}
		clk.Advance(d)
	}
	nextDelay(t, clk)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not stop after cancel")
	}

	if len(retries) < len(want) || retries[0] != 1 || retries[len(want)-1] != len(want) {
		t.Errorf("retry attempts = %v", retries)
	}
}

func TestReconnectorDeliversEventsAndResetsBackoff(t *testing.T) {
	t.Parallel()

	fromClient := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" || r.URL.Query().Get("token") != "tok-1" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"STATUS","payload":{"userId":"bob","isOnline":true}}`))
		if _, frame, err := ws.ReadMessage(); err == nil {
			fromClient <- frame
		}
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = ws.ReadMessage()
	}))
	defer server.Close()

	clk := newFakeClock()
	clk.scheduled = make(chan time.Duration, 16)

	var fetches atomic.Int32
	creds := CredentialFunc(func(context.Context) (string, error) {
		if fetches.Add(1) == 1 {
			return "", errors.New("session not ready")
		}
		return "tok-1", nil
	})

	events := make(chan protocol.Envelope, 4)
	var opens atomic.Int32
	r, err := NewReconnector(server.URL, creds, func(e protocol.Envelope) { events <- e }, Options{
		Clock:  clk,
		OnOpen: func() { opens.Add(1) },
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// First credential fetch fails.
	if d := nextDelay(t, clk); d != time.Second {
		t.Fatalf("first delay = %v, want 1s", d)
	}
	clk.Advance(time.Second)

	select {
	case e := <-events:
		if e.Type != protocol.TypeStatus {
			t.Errorf("event type = %s, want STATUS", e.Type)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no event delivered")
	}

	if err := r.Typing("bob", true); err != nil {
		t.Fatalf("Typing() error = %v", err)
	}
	select {
	case frame := <-fromClient:
		if !strings.Contains(string(frame), `"type":"TYPING"`) || !strings.Contains(string(frame), `"receiverId":"bob"`) {
			t.Errorf("client frame = %s", frame)
		}
	case <-time.After(waitTimeout):
		t.Fatal("server did not receive the typing frame")
	}

	// The open reset the counter, so the close schedules the base delay again.
	if d := nextDelay(t, clk); d != time.Second {
		t.Errorf("delay after a successful open = %v, want 1s", d)
	}
	if n := opens.Load(); n != 1 {
		t.Errorf("opens = %d, want 1", n)
	}
	if r.Connected() {
		t.Error("Connected() = true after close")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	t.Parallel()

	r, err := NewReconnector("ws://127.0.0.1:1", StaticToken("t"), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Chat("bob", "hi", "tmp-1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Chat() error = %v, want ErrNotConnected", err)
	}
}

func TestStaticTokenEmpty(t *testing.T) {
	t.Parallel()

	if _, err := StaticToken("").Token(context.Background()); err == nil {
		t.Error("empty StaticToken should fail")
	}
}
