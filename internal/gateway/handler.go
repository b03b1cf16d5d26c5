// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package gateway implements the message operations of the delivery core and
// the lifecycle of a client connection.
//
// Every operation follows the same shape: persist, push to local sockets
// through the registry, then publish on the fan-out bus so other instances
// can push to theirs. A failed publish does not undo the local work; it is
// returned as a KindFanout error after everything else is done.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/parley/internal/database"
	"github.com/tomtom215/parley/internal/fanout"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/protocol"
	"github.com/tomtom215/parley/internal/registry"
)

// Assistant writes the reply of the assistant peer. It always returns text:
// failures produce a fixed fallback reply.
type Assistant interface {
	Reply(ctx context.Context, history []models.Message) string
}

// Options tunes a Handler.
type Options struct {
	// AssistantID is the user ID of the assistant peer. Empty disables it.
	AssistantID string

	// HistoryLimit is how many recent messages the assistant sees.
	HistoryLimit int

	// ReplyTimeout bounds reading the history and generating the assistant
	// reply. Storing and pushing the reply has its own deadline.
	ReplyTimeout time.Duration

	// Now is the clock. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Handler executes client operations for one gateway instance.
type Handler struct {
	store     database.Store
	sender    registry.Sender
	bus       fanout.Publisher
	assistant Assistant
	opts      Options

	replies sync.WaitGroup
}

// NewHandler creates a Handler. assistant may be nil when AssistantID is empty.
func NewHandler(store database.Store, sender registry.Sender, bus fanout.Publisher, assistant Assistant, opts Options) *Handler {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 90 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if assistant == nil {
		opts.AssistantID = ""
	}
	return &Handler{store: store, sender: sender, bus: bus, assistant: assistant, opts: opts}
}

// Wait blocks until every in-flight assistant reply has finished.
func (h *Handler) Wait() {
	h.replies.Wait()
}

// Handle dispatches one parsed client envelope sent by userID.
func (h *Handler) Handle(ctx context.Context, userID string, in protocol.Incoming) error {
	switch in.Type {
	case protocol.TypeChat:
		return h.Chat(ctx, userID, in.Chat)
	case protocol.TypeTyping:
		return h.Typing(ctx, userID, in.Typing)
	case protocol.TypeRead:
		return h.Read(ctx, userID, in.Read)
	case protocol.TypeReaction:
		return h.React(ctx, userID, in.Reaction)
	default:
		return opErr("dispatch", KindProtocol, fmt.Errorf("unsupported type %q", in.Type))
	}
}

// publish sends p and classifies a failure as KindFanout.
func (h *Handler) publish(ctx context.Context, op string, ch fanout.Channel, p fanout.Payload) error {
	if h.bus == nil {
		return nil
	}
	return opErr(op, KindFanout, h.bus.Publish(ctx, ch, p))
}

// Chat stores a message, delivers it to the receiver's sockets and
// acknowledges it to the sender.
func (h *Handler) Chat(ctx context.Context, senderID string, req *protocol.ChatRequest) error {
	const op = "chat"

	conv, err := h.store.GetOrCreateConversation(ctx, senderID, req.ReceiverID)
	if err != nil {
		return opErr(op, KindPersistence, err)
	}

	now := h.opts.Now()
	msg, err := h.store.CreateMessage(ctx, database.NewMessage{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        req.Content,
		Delivered:      h.sender.IsOnline(req.ReceiverID),
		At:             now,
	})
	if err != nil {
		return opErr(op, KindPersistence, err)
	}
	h.touch(ctx, conv.ID, now)

	h.sender.SendTo(req.ReceiverID, protocol.Chat(protocol.NewChatEvent(msg, req.ReceiverID)))
	pubErr := h.publish(ctx, op, fanout.ChannelChatMessages,
		fanout.NewMessagePayload(msg.ID, senderID, req.ReceiverID, msg.Content, msg.CreatedAt, msg.Delivered))

	h.sender.SendTo(senderID, protocol.ChatAck(protocol.ChatAckEvent{
		TempID:         req.TempID,
		Message:        msg,
		ConversationID: conv.ID,
	}))

	if h.opts.AssistantID != "" && req.ReceiverID == h.opts.AssistantID && senderID != h.opts.AssistantID {
		h.replyAsync(ctx, conv.ID, senderID)
	}
	return pubErr
}

// touch bumps the conversation's updatedAt. Failure only affects list ordering.
func (h *Handler) touch(ctx context.Context, conversationID string, at time.Time) {
	if err := h.store.TouchConversation(ctx, conversationID, at); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to touch conversation")
	}
}

// replyStoreTimeout bounds persisting and delivering an assistant reply once
// its text exists, so a generation that used up ReplyTimeout still lands.
const replyStoreTimeout = 10 * time.Second

// replyAsync generates and delivers the assistant's answer without blocking
// the caller. It outlives the connection that triggered it.
func (h *Handler) replyAsync(ctx context.Context, conversationID, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.ReplyTimeout)

	h.replies.Add(1)
	go func() {
		defer h.replies.Done()
		defer cancel()

		if err := h.assistantReply(ctx, conversationID, userID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("conversation_id", conversationID).Msg("Assistant reply failed")
		}
	}()
}

func (h *Handler) assistantReply(ctx context.Context, conversationID, userID string) error {
	const op = "assistant"

	page, err := h.store.ListMessages(ctx, conversationID, h.opts.HistoryLimit, "")
	if err != nil {
		return opErr(op, KindPersistence, err)
	}

	text := h.assistant.Reply(ctx, page.Messages)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyStoreTimeout)
	defer cancel()

	now := h.opts.Now()
	msg, err := h.store.CreateMessage(ctx, database.NewMessage{
		ConversationID: conversationID,
		SenderID:       h.opts.AssistantID,
		Content:        text,
		Delivered:      true,
		At:             now,
	})
	if err != nil {
		return opErr(op, KindPersistence, err)
	}
	h.touch(ctx, conversationID, now)

	h.sender.SendTo(userID, protocol.Chat(protocol.NewChatEvent(msg, userID)))
	return h.publish(ctx, op, fanout.ChannelChatMessages,
		fanout.NewMessagePayload(msg.ID, h.opts.AssistantID, userID, msg.Content, msg.CreatedAt, true))
}

// Typing relays a typing indicator. Nothing is stored.
func (h *Handler) Typing(ctx context.Context, userID string, req *protocol.TypingRequest) error {
	h.sender.SendTo(req.ReceiverID, protocol.Typing(protocol.TypingEvent{UserID: userID, IsTyping: req.IsTyping}))
	return h.publish(ctx, "typing", fanout.ChannelTyping, fanout.TypingPayload(userID, req.ReceiverID, req.IsTyping))
}

// Read marks the peer's messages in the conversation as read and sends one
// READ_RECEIPT per message that changed. A missing conversation is not created.
func (h *Handler) Read(ctx context.Context, userID string, req *protocol.ReadRequest) error {
	const op = "read"

	conv, err := h.store.FindConversation(ctx, userID, req.PeerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return opErr(op, KindPersistence, err)
	}

	_, err = h.MarkConversationRead(ctx, conv, userID)
	return err
}

// MarkConversationRead marks every unread message not authored by userID in
// conv as read and notifies the authors. It returns how many messages changed.
func (h *Handler) MarkConversationRead(ctx context.Context, conv *models.Conversation, userID string) (int, error) {
	const op = "read"

	if !conv.HasParticipant(userID) {
		return 0, opErr(op, KindProtocol, ErrNotParticipant)
	}
	peerID := conv.Peer(userID)

	updates, err := h.store.MarkRead(ctx, conv.ID, peerID, h.opts.Now())
	if err != nil {
		return 0, opErr(op, KindPersistence, err)
	}

	var pubErr error
	for _, u := range updates {
		h.sender.SendTo(peerID, protocol.ReadReceipt(protocol.ReceiptEvent{MessageID: u.MessageID, Timestamp: u.At}))
		if err := h.publish(ctx, op, fanout.ChannelDelivery, fanout.ReceiptPayload(fanout.EventRead, u.MessageID, peerID, u.At)); err != nil && pubErr == nil {
			pubErr = err
		}
	}
	return len(updates), pubErr
}

// React applies a reaction toggle and relays it to both participants.
// A toggle that changes nothing is not stored or relayed.
func (h *Handler) React(ctx context.Context, userID string, req *protocol.ReactionRequest) error {
	const op = "reaction"

	msg, err := h.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return opErr(op, KindPersistence, err)
	}
	conv, err := h.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return opErr(op, KindPersistence, err)
	}
	if !conv.HasParticipant(userID) {
		return opErr(op, KindProtocol, ErrNotParticipant)
	}

	updated, changed := msg.Reactions.Apply(req.Action, req.Emoji, userID)
	if !changed {
		return nil
	}
	if err := h.store.UpdateReactions(ctx, msg.ID, updated); err != nil {
		return opErr(op, KindPersistence, err)
	}

	participants := []string{conv.User1ID}
	if conv.User2ID != conv.User1ID {
		participants = append(participants, conv.User2ID)
	}
	event := protocol.Reaction(protocol.ReactionEvent{MessageID: msg.ID, UserID: userID, Emoji: req.Emoji, Action: req.Action})
	for _, uid := range participants {
		h.sender.SendTo(uid, event)
	}
	return h.publish(ctx, op, fanout.ChannelReactions,
		fanout.ReactionPayload(msg.ID, userID, req.Emoji, string(req.Action), participants))
}

// Connected runs the side effects of a new socket: the user is marked online,
// announced on their first socket, and pending messages addressed to them are
// marked delivered with a DELIVERED receipt to each author.
func (h *Handler) Connected(ctx context.Context, userID string, first bool) error {
	const op = "connect"
	now := h.opts.Now()

	var errs []error
	if err := h.store.SetUserOnline(ctx, userID, true, now); err != nil {
		errs = append(errs, opErr(op, KindPersistence, err))
	}
	if first {
		errs = append(errs, h.announce(ctx, userID, true))
	}

	updates, err := h.store.MarkDelivered(ctx, userID, now)
	if err != nil {
		errs = append(errs, opErr(op, KindPersistence, err))
	}
	for _, u := range updates {
		h.sender.SendTo(u.SenderID, protocol.Delivered(protocol.ReceiptEvent{MessageID: u.MessageID, Timestamp: u.At}))
		errs = append(errs, h.publish(ctx, op, fanout.ChannelDelivery, fanout.ReceiptPayload(fanout.EventDelivered, u.MessageID, u.SenderID, u.At)))
	}
	return errors.Join(errs...)
}

// Disconnected runs the side effects of a closed socket. Only the user's last
// socket marks them offline.
func (h *Handler) Disconnected(ctx context.Context, userID string, last bool) error {
	if !last {
		return nil
	}
	var errs []error
	if err := h.store.SetUserOnline(ctx, userID, false, h.opts.Now()); err != nil {
		errs = append(errs, opErr("disconnect", KindPersistence, err))
	}
	errs = append(errs, h.announce(ctx, userID, false))
	return errors.Join(errs...)
}

func (h *Handler) announce(ctx context.Context, userID string, online bool) error {
	h.sender.BroadcastLocal(protocol.Status(protocol.StatusEvent{UserID: userID, IsOnline: online}))
	return h.publish(ctx, "status", fanout.ChannelUserStatus, fanout.StatusPayload(userID, online))
}
