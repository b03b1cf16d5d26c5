// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package breaker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/parley/internal/metrics"
)

func TestBreakerOpensAfterFailureRatio(t *testing.T) {
	t.Parallel()

	cb := New[string](Settings{Name: "test-open", MinRequests: 4, FailureRatio: 0.5, Timeout: time.Hour})
	fail := errors.New("upstream down")

	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(func() (string, error) { return "", fail })
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	_, err := cb.Execute(func() (string, error) { return "ok", nil })
	if !IsRejection(err) {
		t.Errorf("Execute() on open breaker error = %v, want rejection", err)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-open")); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}
}

func TestBreakerStaysClosedBelowSample(t *testing.T) {
	t.Parallel()

	cb := New[int](Settings{Name: "test-sample", MinRequests: 10})
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (int, error) { return 0, errors.New("boom") })
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestIsRejection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{gobreaker.ErrOpenState, true},
		{gobreaker.ErrTooManyRequests, true},
		{fmt.Errorf("call: %w", gobreaker.ErrOpenState), true},
		{errors.New("timeout"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsRejection(tt.err); got != tt.want {
			t.Errorf("IsRejection(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for state, want := range map[gobreaker.State]string{
		gobreaker.StateClosed:   "closed",
		gobreaker.StateHalfOpen: "half-open",
		gobreaker.StateOpen:     "open",
	} {
		if got := StateString(state); got != want {
			t.Errorf("StateString(%v) = %q, want %q", state, got, want)
		}
	}
}
