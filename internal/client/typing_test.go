// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package client

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

type signals struct {
	mu  sync.Mutex
	got []bool
}

func (s *signals) send(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, v)
}

func (s *signals) list() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.got...)
}

func TestTypingThrottle(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	th := NewTypingThrottle()

	steps := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{100 * time.Millisecond, false},
		{250 * time.Millisecond, false},
		{310 * time.Millisecond, true},
		{400 * time.Millisecond, false},
		{700 * time.Millisecond, true},
	}
	for _, s := range steps {
		if got := th.Allow(base.Add(s.offset)); got != s.want {
			t.Errorf("Allow(+%v) = %v, want %v", s.offset, got, s.want)
		}
	}
}

func TestTypistSendsStartThrottledAndStopWhenIdle(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	var s signals
	typist := NewTypist(clk, s.send)

	typist.Keystroke() // t=0: sent
	clk.Advance(100 * time.Millisecond)
	typist.Keystroke() // t=100: throttled
	clk.Advance(250 * time.Millisecond)
	typist.Keystroke() // t=350: sent

	if got := s.list(); !reflect.DeepEqual(got, []bool{true, true}) {
		t.Fatalf("signals = %v, want two starts", got)
	}

	clk.Advance(1999 * time.Millisecond)
	if got := s.list(); len(got) != 2 {
		t.Fatalf("stop sent before idle period: %v", got)
	}

	clk.Advance(time.Millisecond)
	if got := s.list(); !reflect.DeepEqual(got, []bool{true, true, false}) {
		t.Errorf("signals = %v, want stop after 2000ms idle", got)
	}

	clk.Advance(10 * time.Second)
	if got := s.list(); len(got) != 3 {
		t.Errorf("stop sent more than once: %v", got)
	}
}

func TestTypistStopCancelsIdleSignal(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	var s signals
	typist := NewTypist(clk, s.send)

	typist.Keystroke()
	typist.Stop()
	clk.Advance(5 * time.Second)

	if got := s.list(); !reflect.DeepEqual(got, []bool{true}) {
		t.Errorf("signals = %v, want only the start", got)
	}
}

func TestPeerTypingAutoClears(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	type change struct {
		user   string
		typing bool
	}
	var changes []change
	peers := NewPeerTyping(clk, func(u string, v bool) { changes = append(changes, change{u, v}) })

	peers.Set("bob", true)
	if !peers.IsTyping("bob") {
		t.Fatal("bob should be typing")
	}

	clk.Advance(2 * time.Second)
	peers.Set("bob", true) // refresh
	clk.Advance(2 * time.Second)
	if !peers.IsTyping("bob") {
		t.Fatal("refresh should extend the indicator")
	}

	clk.Advance(time.Second)
	if peers.IsTyping("bob") {
		t.Error("indicator should clear 3000ms after the last signal")
	}

	want := []change{{"bob", true}, {"bob", false}}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %v, want %v", changes, want)
	}
}

func TestPeerTypingExplicitStop(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	var cleared int
	peers := NewPeerTyping(clk, func(_ string, v bool) {
		if !v {
			cleared++
		}
	})

	peers.Set("bob", true)
	peers.Set("carol", true)
	peers.Set("bob", false)
	if peers.IsTyping("bob") || !peers.IsTyping("carol") {
		t.Fatal("explicit stop should clear only bob")
	}

	clk.Advance(PeerTypingTTL)
	if peers.IsTyping("carol") {
		t.Error("carol should auto-clear")
	}
	if cleared != 2 {
		t.Errorf("cleared %d times, want 2 (no duplicate for bob)", cleared)
	}

	peers.Set("dave", false)
	if cleared != 2 {
		t.Error("stop for a peer that was not typing should not notify")
	}
}
