// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package fanout carries events between gateway instances.
//
// Every instance publishes what it pushed locally and listens for what others
// published, so a user connected to any instance receives every event meant
// for them. Delivery is best effort: nothing is persisted or replayed, and a
// publish that fails is logged and dropped.
//
// Drivers:
//   - postgres: LISTEN/NOTIFY on the application database (default)
//   - memory: watermill gochannel, for single-node mode and tests
//   - nats: core NATS through watermill-nats
//   - redis: Redis PUBLISH/SUBSCRIBE
package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Channel names a fan-out topic.
type Channel string

const (
	ChannelChatMessages Channel = "chat_messages"
	ChannelUserStatus   Channel = "user_status"
	ChannelTyping       Channel = "typing"
	ChannelReactions    Channel = "reactions"
	ChannelDelivery     Channel = "delivery"
)

// Channels lists every topic an instance listens on.
var Channels = []Channel{
	ChannelChatMessages,
	ChannelUserStatus,
	ChannelTyping,
	ChannelReactions,
	ChannelDelivery,
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// EventType discriminates payloads.
type EventType string

const (
	EventNewMessage   EventType = "NEW_MESSAGE"
	EventStatusChange EventType = "STATUS_CHANGE"
	EventTyping       EventType = "TYPING"
	EventDelivered    EventType = "DELIVERED"
	EventRead         EventType = "READ"
	EventReaction     EventType = "REACTION"
)

// Payload is the JSON body of one fan-out notification. Only the fields of
// its Type are set.
type Payload struct {
	Type   EventType `json:"type"`
	Origin string    `json:"origin,omitempty"`

	// NEW_MESSAGE
	MessageID  string     `json:"messageId,omitempty"`
	SenderID   string     `json:"senderId,omitempty"`
	ReceiverID string     `json:"receiverId,omitempty"`
	Content    string     `json:"content,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	Delivered  bool       `json:"delivered,omitempty"`

	// STATUS_CHANGE, TYPING, REACTION
	UserID   string `json:"userId,omitempty"`
	IsOnline bool   `json:"isOnline"`
	IsTyping bool   `json:"isTyping"`

	// TYPING, DELIVERED, READ
	PeerID    string     `json:"peerId,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// REACTION
	Emoji        string   `json:"emoji,omitempty"`
	Action       string   `json:"action,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// NewMessagePayload announces a stored message to the receiver's instances.
func NewMessagePayload(messageID, senderID, receiverID, content string, createdAt time.Time, delivered bool) Payload {
	at := createdAt
	return Payload{
		Type:       EventNewMessage,
		MessageID:  messageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  &at,
		Delivered:  delivered,
	}
}

// StatusPayload announces a presence change.
func StatusPayload(userID string, online bool) Payload {
	return Payload{Type: EventStatusChange, UserID: userID, IsOnline: online}
}

// TypingPayload forwards a typing indicator to peerID.
func TypingPayload(userID, peerID string, typing bool) Payload {
	return Payload{Type: EventTyping, UserID: userID, PeerID: peerID, IsTyping: typing}
}

// ReceiptPayload forwards a DELIVERED or READ receipt to peerID, the message author.
func ReceiptPayload(t EventType, messageID, peerID string, at time.Time) Payload {
	ts := at
	return Payload{Type: t, MessageID: messageID, PeerID: peerID, Timestamp: &ts}
}

// ReactionPayload forwards a reaction change to both conversation participants.
func ReactionPayload(messageID, userID, emoji, action string, participants []string) Payload {
	return Payload{
		Type:         EventReaction,
		MessageID:    messageID,
		UserID:       userID,
		Emoji:        emoji,
		Action:       action,
		Participants: participants,
	}
}

// ErrPayloadTooLarge is returned when an encoded payload exceeds the driver's limit.
var ErrPayloadTooLarge = errors.New("fanout: payload too large")

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("fanout: bus closed")

func encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Type == "" {
		return Payload{}, errors.New("decode payload: missing type")
	}
	return p, nil
}

// Handler processes one received payload.
type Handler func(ctx context.Context, p Payload) error

// Publisher sends payloads to every instance.
type Publisher interface {
	Publish(ctx context.Context, ch Channel, p Payload) error
}

// Bus is a fan-out transport with local handler dispatch.
type Bus interface {
	Publisher

	// Subscribe registers h for ch and returns a function that removes it.
	Subscribe(ch Channel, h Handler) (unsubscribe func())

	// Run listens until ctx is cancelled, reconnecting after failures.
	Run(ctx context.Context) error

	Close() error
}
