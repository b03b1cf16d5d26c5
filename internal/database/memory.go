// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/parley/internal/models"
)

// Memory is an in-process Store with the same semantics as DB.
// Values are copied on the way in and out, so callers never share state with the store.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	byPair        map[[2]string]string
	messages      map[string]*models.Message
	order         []string // message IDs in insertion order
	users         map[string]*models.User
	sessions      map[string]memorySession
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*models.Conversation),
		byPair:        make(map[[2]string]string),
		messages:      make(map[string]*models.Message),
		users:         make(map[string]*models.User),
		sessions:      make(map[string]memorySession),
	}
}

// AddSession registers a session token, mirroring a login on the web application.
func (s *Memory) AddSession(token, userID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = memorySession{userID: userID, expiresAt: expiresAt}
}

// User returns a copy of a user row, if present.
func (s *Memory) User(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, false
	}
	return *u, true
}

func copyConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.Settings = make(models.Settings, len(c.Settings))
	for k, v := range c.Settings {
		out.Settings[k] = v
	}
	return &out
}

func copyMessage(m *models.Message) *models.Message {
	out := *m
	out.Reactions = m.Reactions.Clone()
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		out.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		out.ReadAt = &t
	}
	return &out
}

// GetOrCreateConversation returns the conversation between a and b, creating it on first use.
func (s *Memory) GetOrCreateConversation(_ context.Context, a, b string) (*models.Conversation, error) {
	first, second := models.CanonicalPair(a, b)
	key := [2]string{first, second}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPair[key]; ok {
		return copyConversation(s.conversations[id]), nil
	}

	c := &models.Conversation{
		ID:        uuid.NewString(),
		User1ID:   first,
		User2ID:   second,
		Settings:  models.Settings{},
		UpdatedAt: time.Now().UTC(),
	}
	s.conversations[c.ID] = c
	s.byPair[key] = c.ID
	return copyConversation(c), nil
}

// FindConversation returns the conversation between a and b, or ErrNotFound.
func (s *Memory) FindConversation(_ context.Context, a, b string) (*models.Conversation, error) {
	first, second := models.CanonicalPair(a, b)

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[[2]string{first, second}]
	if !ok {
		return nil, fmt.Errorf("find conversation: %w", ErrNotFound)
	}
	return copyConversation(s.conversations[id]), nil
}

// GetConversation returns the conversation with the given id, or ErrNotFound.
func (s *Memory) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("get conversation: %w", ErrNotFound)
	}
	return copyConversation(c), nil
}

// TouchConversation sets the conversation's updated time to at.
func (s *Memory) TouchConversation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[id]; ok {
		c.UpdatedAt = at
	}
	return nil
}

// UpdateSettings replaces the conversation's settings document.
func (s *Memory) UpdateSettings(_ context.Context, conversationID string, settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("update settings: %w", ErrNotFound)
	}
	c.Settings = copyConversation(&models.Conversation{Settings: settings}).Settings
	return nil
}

// CreateMessage stores a new message and returns a copy of it.
func (s *Memory) CreateMessage(_ context.Context, msg NewMessage) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return nil, fmt.Errorf("create message: conversation %s: %w", msg.ConversationID, ErrNotFound)
	}

	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.At,
		Delivered:      msg.Delivered,
		Reactions:      models.Reactions{},
	}
	if msg.Delivered {
		at := msg.At
		m.DeliveredAt = &at
	}

	s.messages[m.ID] = m
	s.order = append(s.order, m.ID)
	return copyMessage(m), nil
}

// GetMessage returns the message with the given id, or ErrNotFound.
func (s *Memory) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("get message: %w", ErrNotFound)
	}
	return copyMessage(m), nil
}

// UpdateReactions replaces a message's reaction map.
func (s *Memory) UpdateReactions(_ context.Context, messageID string, reactions models.Reactions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return fmt.Errorf("update reactions: %w", ErrNotFound)
	}
	m.Reactions = reactions.Clone()
	return nil
}

// MarkDelivered promotes SENT messages addressed to userID to DELIVERED.
func (s *Memory) MarkDelivered(_ context.Context, userID string, at time.Time) ([]StatusUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updates []StatusUpdate
	for _, id := range s.order {
		m := s.messages[id]
		if m.Delivered || m.SenderID == userID {
			continue
		}
		if c := s.conversations[m.ConversationID]; c == nil || !c.HasParticipant(userID) {
			continue
		}
		t := at
		m.Delivered = true
		m.DeliveredAt = &t
		updates = append(updates, StatusUpdate{MessageID: m.ID, ConversationID: m.ConversationID, SenderID: m.SenderID, At: at})
	}
	return updates, nil
}

// MarkRead marks unread messages by authorID in the conversation as READ.
func (s *Memory) MarkRead(_ context.Context, conversationID, authorID string, at time.Time) ([]StatusUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updates []StatusUpdate
	for _, id := range s.order {
		m := s.messages[id]
		if m.ConversationID != conversationID || m.SenderID != authorID || m.Read {
			continue
		}
		t := at
		m.Read = true
		m.ReadAt = &t
		if !m.Delivered || m.DeliveredAt == nil {
			d := at
			m.Delivered = true
			m.DeliveredAt = &d
		}
		updates = append(updates, StatusUpdate{MessageID: m.ID, ConversationID: m.ConversationID, SenderID: m.SenderID, At: at})
	}
	return updates, nil
}

// ListMessages returns the newest page at or before cursor, in chronological order.
func (s *Memory) ListMessages(_ context.Context, conversationID string, limit int, cursor string) (*models.MessagePage, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Message
	for _, id := range s.order {
		if m := s.messages[id]; m.ConversationID == conversationID {
			all = append(all, m)
		}
	}
	// Newest first, ties broken by ID descending, matching the SQL ordering.
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	start := 0
	if cursor != "" {
		start = len(all)
		for i, m := range all {
			if m.ID == cursor {
				start = i
				break
			}
		}
	}

	newestFirst := make([]models.Message, 0, limit+1)
	for i := start; i < len(all) && len(newestFirst) < limit+1; i++ {
		newestFirst = append(newestFirst, *copyMessage(all[i]))
	}

	return buildPage(conversationID, newestFirst, limit), nil
}

// SetUserOnline records a user's presence flag and last-seen time.
func (s *Memory) SetUserOnline(_ context.Context, userID string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = &models.User{ID: userID}
		s.users[userID] = u
	}
	t := at
	u.IsOnline = online
	u.LastSeen = &t
	return nil
}

// SessionUser resolves an unexpired session token to its user id.
func (s *Memory) SessionUser(_ context.Context, token string, now time.Time) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok || !sess.expiresAt.After(now) {
		return "", fmt.Errorf("lookup session: %w", ErrNotFound)
	}
	return sess.userID, nil
}

// Ping always succeeds.
func (s *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Memory) Close() {}
