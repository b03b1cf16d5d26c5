// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package registry tracks which users have live sockets on this process.
//
// The Registry is the only owner of the user → connections map. Callers go
// through Register, Unregister, IsOnline, SendTo and BroadcastLocal and never
// see the map itself. It knows nothing about other processes; cross-instance
// delivery is the fan-out layer's job.
package registry

import (
	"sort"
	"sync"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/protocol"
)

// Sender is the subset of the registry the protocol handler and relay depend on.
type Sender interface {
	IsOnline(userID string) bool
	SendTo(userID string, event protocol.Outgoing) int
	BroadcastLocal(event protocol.Outgoing) int
}

// Registry maps user IDs to their local connections.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[uint64]*Conn
	conns int

	alwaysOnline map[string]struct{}
}

var _ Sender = (*Registry)(nil)

// New creates an empty registry. The given identities (the assistant) are
// always reported online even though they never hold a socket.
func New(alwaysOnline ...string) *Registry {
	r := &Registry{
		users:        make(map[string]map[uint64]*Conn),
		alwaysOnline: make(map[string]struct{}, len(alwaysOnline)),
	}
	for _, id := range alwaysOnline {
		if id != "" {
			r.alwaysOnline[id] = struct{}{}
		}
	}
	return r
}

// Register adds conn to its owner's set and reports whether it is the owner's
// first local connection.
func (r *Registry) Register(conn *Conn) (first bool) {
	r.mu.Lock()
	set, ok := r.users[conn.userID]
	if !ok {
		set = make(map[uint64]*Conn)
		r.users[conn.userID] = set
	}
	if _, dup := set[conn.id]; !dup {
		set[conn.id] = conn
		r.conns++
	}
	first = !ok
	conns, users := r.conns, len(r.users)
	r.mu.Unlock()

	metrics.SetConnectionCounts(conns, users)
	logging.Debug().
		Str("user_id", conn.userID).
		Uint64("conn_id", conn.id).
		Bool("first", first).
		Int("total_connections", conns).
		Msg("websocket connection registered")
	return first
}

// Unregister removes conn and reports whether it was the owner's last local
// connection. Unregistering an unknown connection reports false.
func (r *Registry) Unregister(conn *Conn) (last bool) {
	r.mu.Lock()
	set, ok := r.users[conn.userID]
	if ok {
		if _, present := set[conn.id]; present {
			delete(set, conn.id)
			r.conns--
			if len(set) == 0 {
				delete(r.users, conn.userID)
				last = true
			}
		}
	}
	conns, users := r.conns, len(r.users)
	r.mu.Unlock()

	metrics.SetConnectionCounts(conns, users)
	logging.Debug().
		Str("user_id", conn.userID).
		Uint64("conn_id", conn.id).
		Bool("last", last).
		Int("total_connections", conns).
		Msg("websocket connection unregistered")
	return last
}

// IsOnline reports whether the user has a local connection or is always online.
func (r *Registry) IsOnline(userID string) bool {
	if _, ok := r.alwaysOnline[userID]; ok {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// SendTo queues event on every local connection of userID and returns how many
// accepted it. Unknown users are a no-op.
func (r *Registry) SendTo(userID string, event protocol.Outgoing) int {
	r.mu.RLock()
	targets := sortedConns(r.users[userID])
	r.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}
	return deliver(targets, event)
}

// BroadcastLocal queues event on every local connection.
func (r *Registry) BroadcastLocal(event protocol.Outgoing) int {
	r.mu.RLock()
	targets := make([]*Conn, 0, r.conns)
	for _, set := range r.users {
		for _, c := range set {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	return deliver(targets, event)
}

// ConnectedUsers returns the number of users with at least one local connection.
func (r *Registry) ConnectedUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Connections returns the number of local connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns
}

// CloseAll closes every connection's outbound queue and returns how many it
// closed. Used on shutdown; write pumps see the closed queue and send a close
// frame. Connections stay registered until their sessions unregister them, so
// the last one of each user still reports last and runs the offline effects.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	all := make([]*Conn, 0, r.conns)
	for _, set := range r.users {
		for _, c := range set {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
	return len(all)
}

// sortedConns copies a user's set in ID order. Caller holds the read lock.
func sortedConns(set map[uint64]*Conn) []*Conn {
	if len(set) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// deliver encodes event once and offers it to each target.
func deliver(targets []*Conn, event protocol.Outgoing) int {
	frame, err := protocol.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("type", string(event.Type)).Msg("failed to encode outbound event")
		return 0
	}

	sent := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			sent++
			continue
		}
		metrics.WSFramesDropped.Inc()
		logging.Warn().
			Str("user_id", c.userID).
			Uint64("conn_id", c.id).
			Str("type", string(event.Type)).
			Msg("outbound queue full, dropping frame")
	}
	if sent > 0 {
		metrics.WSFramesSent.WithLabelValues(string(event.Type)).Add(float64(sent))
	}
	return sent
}
