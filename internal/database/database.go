// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package database is the persistence collaborator of the gateway.
//
// Two implementations satisfy Store: DB (PostgreSQL through pgx, the schema
// shared with the web application) and Memory (in-process, used for
// single-node development and tests). Both honour the same contract:
//
//   - GetOrCreateConversation is idempotent for either argument order
//   - delivered and read flags never go back to false
//   - MarkDelivered only touches rows that were not yet delivered
package database

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/parley/internal/models"
)

// ErrNotFound is returned when a conversation, message or session does not exist.
var ErrNotFound = errors.New("not found")

// MaxPageSize bounds ListMessages.
const MaxPageSize = 50

// NewMessage is the input to CreateMessage.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
	Delivered      bool
	At             time.Time
}

// StatusUpdate identifies a message whose delivered or read flag was just set.
type StatusUpdate struct {
	MessageID      string
	ConversationID string
	SenderID       string
	At             time.Time
}

// Store is the persistence contract the gateway depends on.
type Store interface {
	// GetOrCreateConversation returns the canonical conversation for two users, creating it if needed.
	GetOrCreateConversation(ctx context.Context, a, b string) (*models.Conversation, error)
	// FindConversation returns the canonical conversation for two users or ErrNotFound.
	FindConversation(ctx context.Context, a, b string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	UpdateSettings(ctx context.Context, conversationID string, settings models.Settings) error

	CreateMessage(ctx context.Context, msg NewMessage) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	UpdateReactions(ctx context.Context, messageID string, reactions models.Reactions) error
	// MarkDelivered marks every undelivered message addressed to userID and returns what changed.
	MarkDelivered(ctx context.Context, userID string, at time.Time) ([]StatusUpdate, error)
	// MarkRead marks unread messages by authorID in a conversation as read (and delivered).
	MarkRead(ctx context.Context, conversationID, authorID string, at time.Time) ([]StatusUpdate, error)
	// ListMessages pages backwards from cursor (inclusive); the page is returned oldest first.
	ListMessages(ctx context.Context, conversationID string, limit int, cursor string) (*models.MessagePage, error)

	SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error
	// SessionUser resolves a session token to its user ID, rejecting expired sessions.
	SessionUser(ctx context.Context, token string, now time.Time) (string, error)

	Ping(ctx context.Context) error
	Close()
}

// clampLimit applies the page size bounds.
func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
