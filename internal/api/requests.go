// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

// HistoryRequest holds the validated parameters of the history endpoint.
type HistoryRequest struct {
	PeerID string `json:"peerId" validate:"required,max=128"`
	Limit  int    `json:"limit" validate:"min=1,max=50"`
	Cursor string `json:"cursor" validate:"omitempty,max=128"`
}

// ConversationRef names a conversation either directly or by the other participant.
type ConversationRef struct {
	ConversationID string `json:"conversationId" validate:"required_without=PeerID,max=128"`
	PeerID         string `json:"peerId" validate:"required_without=ConversationID,max=128"`
}

// ReadResponse reports how many messages a read marked.
type ReadResponse struct {
	ConversationID string `json:"conversationId"`
	Updated        int    `json:"updated"`
}

// SettingResponse reports a setting's new value.
type SettingResponse struct {
	ConversationID string `json:"conversationId"`
	Setting        string `json:"setting"`
	Value          bool   `json:"value"`
}
