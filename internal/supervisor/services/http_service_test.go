// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockHTTPServer is a test double for the HTTPServer interface.
type mockHTTPServer struct {
	listenErr     error
	shutdownErr   error
	shutdownCount atomic.Int32
	started       chan struct{}
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{
		started: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

func (m *mockHTTPServer) ListenAndServe() error {
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCount.Add(1)
	m.stopOnce.Do(func() { close(m.stopCh) })
	return m.shutdownErr
}

func TestHTTPServerService_Interface(t *testing.T) {
	var _ suture.Service = (*HTTPServerService)(nil)
}

func TestNewHTTPServerService_DefaultTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"zero", 0, 10 * time.Second},
		{"negative", -5 * time.Second, 10 * time.Second},
		{"explicit", 3 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := NewHTTPServerService(newMockHTTPServer(), tt.timeout)
			if svc.shutdownTimeout != tt.want {
				t.Errorf("shutdownTimeout = %v, want %v", svc.shutdownTimeout, tt.want)
			}
			if svc.String() != "http-server" {
				t.Errorf("String() = %q", svc.String())
			}
		})
	}
}

func TestHTTPServerService_Serve(t *testing.T) {
	t.Parallel()

	t.Run("shuts down and drains on context cancellation", func(t *testing.T) {
		t.Parallel()

		server := newMockHTTPServer()
		var order []string
		var mu sync.Mutex
		hook := func(name string) func() {
			return func() {
				mu.Lock()
				defer mu.Unlock()
				// Shutdown has already been called when hooks run.
				if server.shutdownCount.Load() != 1 {
					t.Errorf("hook %s ran before Shutdown", name)
				}
				order = append(order, name)
			}
		}
		svc := NewHTTPServerService(server, time.Second, hook("close-sockets"), hook("wait-gateway"))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		<-server.started
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after cancellation")
		}

		mu.Lock()
		defer mu.Unlock()
		if len(order) != 2 || order[0] != "close-sockets" || order[1] != "wait-gateway" {
			t.Errorf("drain order = %v", order)
		}
	})

	t.Run("returns listen error", func(t *testing.T) {
		t.Parallel()

		server := newMockHTTPServer()
		server.listenErr = errors.New("address already in use")
		svc := NewHTTPServerService(server, time.Second)

		err := svc.Serve(context.Background())
		if err == nil || !errors.Is(err, server.listenErr) {
			t.Errorf("Serve() = %v, want wrapped listen error", err)
		}
		if server.shutdownCount.Load() != 0 {
			t.Error("Shutdown should not be called when listen fails")
		}
	})

	t.Run("reports shutdown error after draining", func(t *testing.T) {
		t.Parallel()

		server := newMockHTTPServer()
		server.shutdownErr = errors.New("deadline exceeded")
		var drained atomic.Bool
		svc := NewHTTPServerService(server, time.Second, func() { drained.Store(true) })

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()
		<-server.started
		cancel()

		err := <-errCh
		if !errors.Is(err, server.shutdownErr) {
			t.Errorf("Serve() = %v, want shutdown error", err)
		}
		if !drained.Load() {
			t.Error("drain hook should run even when Shutdown fails")
		}
	})
}
