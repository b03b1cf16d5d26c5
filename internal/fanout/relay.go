// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/protocol"
	"github.com/tomtom215/parley/internal/registry"
)

// Relay turns payloads from other instances into pushes to local sockets.
type Relay struct {
	sender registry.Sender
	origin string

	mu     sync.Mutex
	unsubs []func()
}

// NewRelay creates a relay that pushes through sender and skips payloads
// stamped with origin, which this process already delivered locally.
func NewRelay(sender registry.Sender, origin string) *Relay {
	return &Relay{sender: sender, origin: origin}
}

// Attach subscribes the relay to every channel of bus.
func (r *Relay) Attach(bus Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range Channels {
		r.unsubs = append(r.unsubs, bus.Subscribe(ch, r.Handle))
	}
}

// Detach removes every subscription made by Attach.
func (r *Relay) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// Handle pushes one payload to the local sockets it concerns.
func (r *Relay) Handle(_ context.Context, p Payload) error {
	if p.Origin != "" && p.Origin == r.origin {
		return nil
	}

	switch p.Type {
	case EventNewMessage:
		r.sender.SendTo(p.ReceiverID, protocol.Chat(protocol.ChatEvent{
			ID:         p.MessageID,
			Content:    p.Content,
			SenderID:   p.SenderID,
			ReceiverID: p.ReceiverID,
			CreatedAt:  timeOrZero(p.CreatedAt),
			Delivered:  p.Delivered,
		}))
		r.sender.SendTo(p.SenderID, protocol.ChatSent(protocol.ChatSentEvent{ID: p.MessageID, ReceiverID: p.ReceiverID}))

	case EventStatusChange:
		r.sender.BroadcastLocal(protocol.Status(protocol.StatusEvent{UserID: p.UserID, IsOnline: p.IsOnline}))

	case EventTyping:
		r.sender.SendTo(p.PeerID, protocol.Typing(protocol.TypingEvent{UserID: p.UserID, IsTyping: p.IsTyping}))

	case EventDelivered:
		r.sender.SendTo(p.PeerID, protocol.Delivered(protocol.ReceiptEvent{MessageID: p.MessageID, Timestamp: timeOrZero(p.Timestamp)}))

	case EventRead:
		r.sender.SendTo(p.PeerID, protocol.ReadReceipt(protocol.ReceiptEvent{MessageID: p.MessageID, Timestamp: timeOrZero(p.Timestamp)}))

	case EventReaction:
		event := protocol.Reaction(protocol.ReactionEvent{
			MessageID: p.MessageID,
			UserID:    p.UserID,
			Emoji:     p.Emoji,
			Action:    models.ReactionAction(p.Action),
		})
		for _, uid := range p.Participants {
			r.sender.SendTo(uid, event)
		}

	default:
		return fmt.Errorf("relay: unknown event type %q", p.Type)
	}
	return nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
