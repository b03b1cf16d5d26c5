// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package models

import "time"

// Conversation is the single persisted thread between an unordered pair of users.
// User1ID < User2ID always holds; use CanonicalPair to build the key.
type Conversation struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1Id"`
	User2ID   string    `json:"user2Id"`
	Settings  Settings  `json:"settings"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanonicalPair orders two user IDs so that the first sorts before the second.
// Every lookup or insert keyed on a pair of users goes through this function.
func CanonicalPair(a, b string) (first, second string) {
	if b < a {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Peer returns the other participant, or "" if userID is not a participant.
func (c *Conversation) Peer(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	default:
		return ""
	}
}

// UserSettings holds one participant's view preferences for a conversation.
type UserSettings struct {
	Archived bool `json:"archived"`
	Muted    bool `json:"muted"`
	Pinned   bool `json:"pinned"`
}

// Settings maps a user ID to that user's preferences.
// The whole document is read, modified and written back; concurrent toggles
// by the same user on the same conversation can lose an update.
type Settings map[string]UserSettings

// For returns userID's settings, or the zero value if none are stored.
func (s Settings) For(userID string) UserSettings {
	return s[userID]
}

// SettingsFlag names one toggleable per-user conversation setting.
type SettingsFlag string

const (
	FlagArchived SettingsFlag = "archived"
	FlagMuted    SettingsFlag = "muted"
	FlagPinned   SettingsFlag = "pinned"
)

// With returns a copy of s with the given flag set for userID.
func (s Settings) With(userID string, flag SettingsFlag, value bool) Settings {
	out := make(Settings, len(s)+1)
	for k, v := range s {
		out[k] = v
	}

	us := out[userID]
	switch flag {
	case FlagArchived:
		us.Archived = value
	case FlagMuted:
		us.Muted = value
	case FlagPinned:
		us.Pinned = value
	}
	out[userID] = us
	return out
}

// Get returns the current value of flag for userID.
func (s Settings) Get(userID string, flag SettingsFlag) bool {
	us := s[userID]
	switch flag {
	case FlagArchived:
		return us.Archived
	case FlagMuted:
		return us.Muted
	case FlagPinned:
		return us.Pinned
	default:
		return false
	}
}
