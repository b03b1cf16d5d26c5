// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package models

import "time"

// Message is a persisted chat message.
//
// Status only moves forward: unset -> delivered -> read. Stores never clear
// Delivered or Read once set, and marking a message read also marks it delivered.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"createdAt"`
	Delivered      bool       `json:"delivered"`
	DeliveredAt    *time.Time `json:"deliveredAt"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"readAt"`
	Reactions      Reactions  `json:"reactions"`
}

// ReactionAction is the requested change to a reaction set.
type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

// Valid reports whether a is add or remove.
func (a ReactionAction) Valid() bool {
	return a == ReactionAdd || a == ReactionRemove
}

// ReactionOptions is the emoji palette offered by clients.
// The server accepts any non-empty emoji.
var ReactionOptions = []string{"👍", "👎", "❣️", "❤️", "😂", "😮", "😢", "😡"}

// Reactions maps an emoji to the IDs of users who applied it, in the order they did.
// An emoji key is removed as soon as its user list becomes empty.
// A user may hold several different emoji on the same message.
type Reactions map[string][]string

// Clone returns a deep copy of r. The result is never nil.
func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = append([]string(nil), users...)
	}
	return out
}

// Apply returns a copy of r with userID added to or removed from emoji's set,
// and whether anything changed. Both actions are idempotent.
func (r Reactions) Apply(action ReactionAction, emoji, userID string) (Reactions, bool) {
	out := r.Clone()
	users := out[emoji]
	idx := indexOf(users, userID)

	switch action {
	case ReactionAdd:
		if idx >= 0 {
			return out, false
		}
		out[emoji] = append(users, userID)
		return out, true
	case ReactionRemove:
		if idx < 0 {
			return out, false
		}
		users = append(users[:idx], users[idx+1:]...)
		if len(users) == 0 {
			delete(out, emoji)
		} else {
			out[emoji] = users
		}
		return out, true
	default:
		return out, false
	}
}

// Has reports whether userID applied emoji.
func (r Reactions) Has(emoji, userID string) bool {
	return indexOf(r[emoji], userID) >= 0
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

// MessagePage is one page of conversation history, oldest first.
type MessagePage struct {
	Messages       []Message `json:"messages"`
	NextCursor     string    `json:"nextCursor,omitempty"`
	ConversationID string    `json:"conversationId"`
}

// User is the subset of the user row the gateway reads and writes.
type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email,omitempty"`
	Image    string     `json:"image,omitempty"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}
