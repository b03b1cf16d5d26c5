// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package client

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Typing timings.
const (
	TypingInterval  = 300 * time.Millisecond
	TypingIdleAfter = 2000 * time.Millisecond
	PeerTypingTTL   = 3000 * time.Millisecond
)

// TypingThrottle allows at most one typing signal per TypingInterval.
type TypingThrottle struct {
	limiter *rate.Limiter
}

// NewTypingThrottle creates a throttle with an initial token.
func NewTypingThrottle() *TypingThrottle {
	return &TypingThrottle{limiter: rate.NewLimiter(rate.Every(TypingInterval), 1)}
}

// Allow reports whether a typing signal may be sent at now.
func (t *TypingThrottle) Allow(now time.Time) bool {
	return t.limiter.AllowN(now, 1)
}

// Typist turns keystrokes into typing signals for one conversation.
// send is called with true for throttled keystrokes and with false once input
// has been idle for TypingIdleAfter.
type Typist struct {
	clock    Clock
	send     func(isTyping bool)
	throttle *TypingThrottle

	mu   sync.Mutex
	idle *armedTimer
}

// NewTypist creates a Typist. A nil clock uses SystemClock.
func NewTypist(clock Clock, send func(isTyping bool)) *Typist {
	if clock == nil {
		clock = SystemClock
	}
	return &Typist{clock: clock, send: send, throttle: NewTypingThrottle()}
}

// Keystroke records input.
func (t *Typist) Keystroke() {
	if t.throttle.Allow(t.clock.Now()) {
		t.send(true)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.idle != nil {
		t.idle.timer.Stop()
	}
	e := &armedTimer{}
	e.timer = t.clock.AfterFunc(TypingIdleAfter, func() { t.expire(e) })
	t.idle = e
}

// Stop cancels a pending idle signal, e.g. when the message is sent or the
// conversation closes.
func (t *Typist) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.idle != nil {
		t.idle.timer.Stop()
		t.idle = nil
	}
}

func (t *Typist) expire(e *armedTimer) {
	t.mu.Lock()
	if t.idle != e {
		t.mu.Unlock()
		return
	}
	t.idle = nil
	t.mu.Unlock()
	t.send(false)
}

// PeerTyping tracks which peers are typing.
type PeerTyping struct {
	clock    Clock
	onChange func(userID string, isTyping bool)

	mu     sync.Mutex
	active map[string]*armedTimer
}

// armedTimer identifies one armed timer so a stale callback can tell it was replaced.
type armedTimer struct {
	timer Timer
}

// NewPeerTyping creates a tracker. onChange may be nil.
func NewPeerTyping(clock Clock, onChange func(userID string, isTyping bool)) *PeerTyping {
	if clock == nil {
		clock = SystemClock
	}
	return &PeerTyping{clock: clock, onChange: onChange, active: make(map[string]*armedTimer)}
}

// Set applies an incoming TYPING event. A true signal is cleared after
// PeerTypingTTL unless refreshed.
func (p *PeerTyping) Set(userID string, isTyping bool) {
	p.mu.Lock()
	prev, was := p.active[userID]
	if was {
		prev.timer.Stop()
		delete(p.active, userID)
	}
	if isTyping {
		e := &armedTimer{}
		e.timer = p.clock.AfterFunc(PeerTypingTTL, func() { p.expire(userID, e) })
		p.active[userID] = e
	}
	p.mu.Unlock()

	if was != isTyping && p.onChange != nil {
		p.onChange(userID, isTyping)
	}
}

// IsTyping reports whether userID is currently typing.
func (p *PeerTyping) IsTyping(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[userID]
	return ok
}

func (p *PeerTyping) expire(userID string, e *armedTimer) {
	p.mu.Lock()
	if p.active[userID] != e {
		// Refreshed or cleared since this timer was armed.
		p.mu.Unlock()
		return
	}
	delete(p.active, userID)
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(userID, false)
	}
}
