// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package client

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	t.Parallel()

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}

	var b Backoff
	for i, w := range want {
		var d time.Duration
		b, d = b.Failed()
		if d != w {
			t.Errorf("failure %d: delay = %v, want %v", i+1, d, w)
		}
		if b.Attempt != i+1 {
			t.Errorf("failure %d: attempt = %d", i+1, b.Attempt)
		}
	}
}

func TestBackoffResetsOnOpen(t *testing.T) {
	t.Parallel()

	var b Backoff
	for i := 0; i < 4; i++ {
		b, _ = b.Failed()
	}

	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	b = b.Opened(now)
	if b.Attempt != 0 || !b.LastOpenedAt.Equal(now) {
		t.Fatalf("Opened() = %+v", b)
	}
	if _, d := b.Failed(); d != BaseDelay {
		t.Errorf("delay after reopen = %v, want %v", d, BaseDelay)
	}
}

func TestBackoffDelayLargeAttempt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{4, 16 * time.Second},
		{5, MaxDelay},
		{64, MaxDelay},
		{1 << 20, MaxDelay},
	}
	for _, tt := range tests {
		if got := (Backoff{Attempt: tt.attempt}).Delay(); got != tt.want {
			t.Errorf("Delay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffIsAValue(t *testing.T) {
	t.Parallel()

	b := Backoff{Attempt: 2}
	next, _ := b.Failed()
	if b.Attempt != 2 || next.Attempt != 3 {
		t.Errorf("Failed() mutated receiver: before=%d after=%d", b.Attempt, next.Attempt)
	}
}
