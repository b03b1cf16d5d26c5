// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func TestChannelValid(t *testing.T) {
	t.Parallel()

	for _, ch := range Channels {
		if !ch.Valid() {
			t.Errorf("%q.Valid() = false", ch)
		}
	}
	if Channel("presence").Valid() {
		t.Error(`"presence".Valid() = true`)
	}
}

func TestNewMessagePayloadWireShape(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	data, err := encode(NewMessagePayload("m1", "a1", "b2", "hi", at, false))
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"type":       "NEW_MESSAGE",
		"messageId":  "m1",
		"senderId":   "a1",
		"receiverId": "b2",
		"content":    "hi",
		"createdAt":  "2026-01-02T10:00:00Z",
	}
	for k, v := range want {
		if raw[k] != v {
			t.Errorf("%s = %v, want %v", k, raw[k], v)
		}
	}
	if _, ok := raw["emoji"]; ok {
		t.Error("unrelated fields should be omitted")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", "hello"},
		{"missing type", `{"userId":"a1"}`},
		{"wrong shape", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := decode([]byte(tt.data)); err == nil {
				t.Errorf("decode(%q) succeeded", tt.data)
			}
		})
	}
}

func TestPublishRejectsUnknownChannel(t *testing.T) {
	t.Parallel()

	n := NewMemory(nil, Options{})
	defer n.Close()

	if err := n.Publish(context.Background(), "presence", StatusPayload("a1", true)); err == nil {
		t.Error("Publish() to unknown channel succeeded")
	}
}

func TestPublishRejectsOversizedPostgresPayload(t *testing.T) {
	t.Parallel()

	// The size check runs before the pool is touched.
	n := NewPostgres(nil, Options{})
	p := NewMessagePayload("m1", "a1", "b2", strings.Repeat("x", PostgresMaxPayload), time.Now(), false)

	err := n.Publish(context.Background(), ChannelChatMessages, p)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Publish() error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestPublishAfterClose(t *testing.T) {
	t.Parallel()

	n := NewMemory(nil, Options{})
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := n.Publish(context.Background(), ChannelTyping, TypingPayload("a1", "b2", true)); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClosed", err)
	}
	if err := n.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Run() after Close error = %v, want ErrClosed", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	t.Parallel()

	a := NewMemory(nil, Options{})
	b := NewMemory(nil, Options{Origin: "node-b", ReconnectDelay: time.Second})
	defer a.Close()
	defer b.Close()

	if a.reconnectDelay != DefaultReconnectDelay {
		t.Errorf("reconnectDelay = %v, want %v", a.reconnectDelay, DefaultReconnectDelay)
	}
	if a.Origin() == "" {
		t.Error("origin should default to a random id")
	}
	if b.Origin() != "node-b" || b.reconnectDelay != time.Second {
		t.Errorf("options not applied: origin=%q delay=%v", b.Origin(), b.reconnectDelay)
	}
	if a.Driver() != "memory" {
		t.Errorf("Driver() = %q", a.Driver())
	}
}
