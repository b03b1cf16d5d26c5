// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package assistant

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func testConfig(baseURL string) config.AssistantConfig {
	return config.AssistantConfig{
		BotID:        "ikem-ai-bot",
		APIKey:       "sk-test",
		BaseURL:      baseURL,
		Model:        "gpt-4o",
		Timeout:      2 * time.Second,
		SystemPrompt: "be brief",
	}
}

func history() []models.Message {
	return []models.Message{
		{SenderID: "alice", Content: "hi"},
		{SenderID: "ikem-ai-bot", Content: "hello"},
		{SenderID: "alice", Content: "how are you?"},
	}
}

func TestReplySendsConversation(t *testing.T) {
	t.Parallel()

	var got completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"doing well"}}]}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL+"/v1/"), nil)
	if reply := c.Reply(context.Background(), history()); reply != "doing well" {
		t.Fatalf("Reply() = %q", reply)
	}

	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("messages = %+v", got.Messages)
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Model != "gpt-4o" || got.Messages[0].Content != "be brief" {
		t.Errorf("request = %+v", got)
	}
}

func TestReplyFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		noKey   bool
		want    string
	}{
		{
			name:  "missing key",
			noKey: true,
			want:  MissingKeyReply,
		},
		{
			name: "upstream error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
			},
			want: FailureReply,
		},
		{
			name: "empty choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			want: FailureReply,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			want: FailureReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := tt.handler
			if handler == nil {
				handler = func(http.ResponseWriter, *http.Request) { t.Error("API called without a key") }
			}
			server := httptest.NewServer(handler)
			defer server.Close()

			cfg := testConfig(server.URL)
			if tt.noKey {
				cfg.APIKey = ""
			}
			if got := New(cfg, nil).Reply(context.Background(), history()); got != tt.want {
				t.Errorf("Reply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBreakerStopsCallingUpstream(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nil)
	for i := 0; i < 6; i++ {
		if got := c.Reply(context.Background(), history()); got != FailureReply {
			t.Fatalf("Reply() = %q, want fallback", got)
		}
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("upstream called %d times, want 3 before the breaker opened", n)
	}
}

func TestReplyTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond
	if got := New(cfg, nil).Reply(context.Background(), history()); got != FailureReply {
		t.Errorf("Reply() = %q, want fallback on timeout", got)
	}
}
