// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// connIDCounter hands out process-unique, monotonically increasing connection IDs.
// Sorting by ID gives broadcasts a stable order.
var connIDCounter atomic.Uint64

// Conn is one registered socket: an owner, and a bounded queue of encoded frames
// drained by the socket's write pump.
type Conn struct {
	id          uint64
	userID      string
	connectedAt time.Time

	send      chan []byte
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewConn creates a connection record with an outbound queue of the given size.
func NewConn(userID string, buffer int, connectedAt time.Time) *Conn {
	if buffer <= 0 {
		buffer = 256
	}
	return &Conn{
		id:          connIDCounter.Add(1),
		userID:      userID,
		connectedAt: connectedAt,
		send:        make(chan []byte, buffer),
	}
}

// ID returns the connection's process-unique identifier.
func (c *Conn) ID() uint64 { return c.id }

// UserID returns the authenticated owner.
func (c *Conn) UserID() string { return c.userID }

// ConnectedAt returns when the socket was accepted.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// Outbound is the queue the write pump drains. It is closed by Close.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// enqueue offers a frame without blocking. It reports false when the queue is
// full or the connection is closed.
func (c *Conn) enqueue(frame []byte) (ok bool) {
	if c.closed.Load() {
		return false
	}
	// Close may race with a send; a send on a closed channel is reported as a drop.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close closes the outbound queue. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}
