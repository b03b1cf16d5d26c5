// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package protocol defines the WebSocket wire envelope and its payloads.
//
// Every frame in either direction is one JSON object {"type": ..., "payload": {...}}.
// Inbound frames go through Parse, which checks the type against the closed set
// of client operations before decoding and validating the payload.
package protocol

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/models"
)

// Type is the envelope discriminator.
type Type string

// Client to server types.
const (
	TypeChat     Type = "CHAT"
	TypeTyping   Type = "TYPING"
	TypeRead     Type = "READ"
	TypeReaction Type = "REACTION"
)

// Server to client types. CHAT, TYPING and REACTION are reused in this direction.
const (
	TypeChatAck     Type = "CHAT_ACK"
	TypeChatSent    Type = "CHAT_SENT"
	TypeStatus      Type = "STATUS"
	TypeDelivered   Type = "DELIVERED"
	TypeReadReceipt Type = "READ_RECEIPT"
)

// Envelope is the raw wire frame.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChatRequest is the payload of an inbound CHAT.
type ChatRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"notblank"`
	TempID     string `json:"tempId"`
}

// TypingRequest is the payload of an inbound TYPING.
type TypingRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	IsTyping   bool   `json:"isTyping"`
}

// ReadRequest is the payload of an inbound READ.
type ReadRequest struct {
	PeerID string `json:"peerId" validate:"required"`
}

// ReactionRequest is the payload of an inbound REACTION.
type ReactionRequest struct {
	MessageID string                `json:"messageId" validate:"required"`
	Emoji     string                `json:"emoji" validate:"notblank"`
	Action    models.ReactionAction `json:"action" validate:"oneof=add remove"`
}

// Incoming is a parsed, validated client envelope. Exactly one payload pointer
// is set, matching Type.
type Incoming struct {
	Type     Type
	Chat     *ChatRequest
	Typing   *TypingRequest
	Read     *ReadRequest
	Reaction *ReactionRequest
}

// Outgoing is a server to client envelope.
type Outgoing struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

// ChatEvent is the CHAT payload pushed to a recipient.
type ChatEvent struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	CreatedAt  time.Time `json:"createdAt"`
	Delivered  bool      `json:"delivered,omitempty"`
	Read       bool      `json:"read,omitempty"`
}

// ChatAckEvent confirms a persisted CHAT to its sender.
type ChatAckEvent struct {
	TempID         string          `json:"tempId"`
	Message        *models.Message `json:"message"`
	ConversationID string          `json:"conversationId"`
}

// ChatSentEvent tells a sender's other sockets that a message went out.
type ChatSentEvent struct {
	ID         string `json:"id"`
	ReceiverID string `json:"receiverId"`
}

// TypingEvent relays a typing signal.
type TypingEvent struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// StatusEvent announces an online/offline transition.
type StatusEvent struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// ReceiptEvent is the payload of DELIVERED and READ_RECEIPT.
type ReceiptEvent struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// ReactionEvent relays a reaction change.
type ReactionEvent struct {
	MessageID string                `json:"messageId"`
	UserID    string                `json:"userId"`
	Emoji     string                `json:"emoji"`
	Action    models.ReactionAction `json:"action"`
}

// NewChatEvent builds the CHAT payload for a persisted message.
func NewChatEvent(m *models.Message, receiverID string) ChatEvent {
	return ChatEvent{
		ID:         m.ID,
		Content:    m.Content,
		SenderID:   m.SenderID,
		ReceiverID: receiverID,
		CreatedAt:  m.CreatedAt,
		Delivered:  m.Delivered,
		Read:       m.Read,
	}
}

// Chat wraps a CHAT event.
func Chat(e ChatEvent) Outgoing { return Outgoing{Type: TypeChat, Payload: e} }

// ChatAck wraps a CHAT_ACK event.
func ChatAck(e ChatAckEvent) Outgoing { return Outgoing{Type: TypeChatAck, Payload: e} }

// ChatSent wraps a CHAT_SENT event.
func ChatSent(e ChatSentEvent) Outgoing { return Outgoing{Type: TypeChatSent, Payload: e} }

// Typing wraps a TYPING event.
func Typing(e TypingEvent) Outgoing { return Outgoing{Type: TypeTyping, Payload: e} }

// Status wraps a STATUS event.
func Status(e StatusEvent) Outgoing { return Outgoing{Type: TypeStatus, Payload: e} }

// Delivered wraps a DELIVERED event.
func Delivered(e ReceiptEvent) Outgoing { return Outgoing{Type: TypeDelivered, Payload: e} }

// ReadReceipt wraps a READ_RECEIPT event.
func ReadReceipt(e ReceiptEvent) Outgoing { return Outgoing{Type: TypeReadReceipt, Payload: e} }

// Reaction wraps a REACTION event.
func Reaction(e ReactionEvent) Outgoing { return Outgoing{Type: TypeReaction, Payload: e} }
