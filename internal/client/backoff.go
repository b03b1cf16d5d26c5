// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package client

import "time"

// Reconnect delay bounds.
const (
	BaseDelay = 1000 * time.Millisecond
	MaxDelay  = 30000 * time.Millisecond
)

// Backoff is the reconnect state of one client. The zero value is a client
// that has never failed.
type Backoff struct {
	Attempt      int
	LastOpenedAt time.Time
}

// Delay is the wait before the next attempt: min(BaseDelay * 2^Attempt, MaxDelay).
func (b Backoff) Delay() time.Duration {
	d := BaseDelay
	for i := 0; i < b.Attempt; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	return d
}

// Failed records a close or a failed attempt. It returns the next state and
// how long to wait before retrying.
func (b Backoff) Failed() (Backoff, time.Duration) {
	delay := b.Delay()
	b.Attempt++
	return b, delay
}

// Opened records a successful open and resets the attempt counter.
func (b Backoff) Opened(now time.Time) Backoff {
	return Backoff{LastOpenedAt: now}
}
