// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/database"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/validation"
)

// ConversationHistory returns one page of messages with a peer, oldest first.
// The conversation is created if it does not exist yet.
func (h *Handler) ConversationHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	limit, err := getIntParam(r, "limit", database.MaxPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be an integer", nil)
		return
	}
	req := HistoryRequest{
		PeerID: chi.URLParam(r, "peerId"),
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(w, verr)
		return
	}

	conv, err := h.store.GetOrCreateConversation(r.Context(), subject.ID, req.PeerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to load conversation", err)
		return
	}
	page, err := h.store.ListMessages(r.Context(), conv.ID, req.Limit, req.Cursor)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to load messages", err)
		return
	}
	respondSuccess(w, start, page)
}

// MarkRead marks every message the peer sent in a conversation as read and
// sends receipts to the peer.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	conv, ok := h.resolveConversation(w, r, subject.ID)
	if !ok {
		return
	}

	n, err := h.gateway.MarkConversationRead(r.Context(), conv, subject.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to mark conversation read", err)
		return
	}
	respondSuccess(w, start, ReadResponse{ConversationID: conv.ID, Updated: n})
}

// Archive hides a conversation for the caller.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setFlagFromBody(w, r, models.FlagArchived, true)
}

// Unarchive restores an archived conversation for the caller.
func (h *Handler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setFlagFromBody(w, r, models.FlagArchived, false)
}

// TogglePin flips the caller's pinned flag on a conversation.
func (h *Handler) TogglePin(w http.ResponseWriter, r *http.Request) {
	h.toggleFlag(w, r, models.FlagPinned)
}

// ToggleMute flips the caller's muted flag on a conversation.
func (h *Handler) ToggleMute(w http.ResponseWriter, r *http.Request) {
	h.toggleFlag(w, r, models.FlagMuted)
}

func (h *Handler) setFlagFromBody(w http.ResponseWriter, r *http.Request, flag models.SettingsFlag, value bool) {
	start := time.Now()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	conv, ok := h.resolveConversation(w, r, subject.ID)
	if !ok {
		return
	}
	h.writeFlag(w, r, start, conv, subject.ID, flag, value)
}

func (h *Handler) toggleFlag(w http.ResponseWriter, r *http.Request, flag models.SettingsFlag) {
	start := time.Now()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	conv, ok := h.loadOwned(w, r, chi.URLParam(r, "id"), subject.ID)
	if !ok {
		return
	}
	h.writeFlag(w, r, start, conv, subject.ID, flag, !conv.Settings.Get(subject.ID, flag))
}

// writeFlag stores the new settings document. Concurrent toggles by the same
// user can lose an update; the document is not versioned.
func (h *Handler) writeFlag(w http.ResponseWriter, r *http.Request, start time.Time, conv *models.Conversation, userID string, flag models.SettingsFlag, value bool) {
	if err := h.store.UpdateSettings(r.Context(), conv.ID, conv.Settings.With(userID, flag, value)); err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to update conversation settings", err)
		return
	}
	logging.Ctx(r.Context()).Debug().Str("conversation_id", conv.ID).Str("setting", string(flag)).Bool("value", value).Msg("Conversation setting updated")
	respondSuccess(w, start, SettingResponse{ConversationID: conv.ID, Setting: string(flag), Value: value})
}

// resolveConversation reads a ConversationRef body and loads the conversation
// it names, answering the error itself when it cannot.
func (h *Handler) resolveConversation(w http.ResponseWriter, r *http.Request, userID string) (*models.Conversation, bool) {
	var ref ConversationRef
	if err := decodeJSON(r, &ref); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", nil)
		return nil, false
	}
	if verr := validation.ValidateStruct(&ref); verr != nil {
		respondValidation(w, verr)
		return nil, false
	}

	if ref.ConversationID != "" {
		return h.loadOwned(w, r, ref.ConversationID, userID)
	}

	conv, err := h.store.FindConversation(r.Context(), userID, ref.PeerID)
	if err != nil {
		h.storeError(w, err, "Conversation not found")
		return nil, false
	}
	return conv, true
}

// loadOwned loads a conversation by ID and checks that userID takes part in it.
func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request, id, userID string) (*models.Conversation, bool) {
	conv, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "Conversation not found")
		return nil, false
	}
	if !conv.HasParticipant(userID) {
		respondError(w, http.StatusForbidden, ErrCodeForbidden, ErrNotParticipant.Error(), nil)
		return nil, false
	}
	return conv, true
}

func (h *Handler) storeError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, notFound, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Request timed out", err)
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "A database error occurred", err)
	}
}

// subject returns the authenticated caller, answering 401 if there is none.
func (h *Handler) subject(w http.ResponseWriter, r *http.Request) (*auth.AuthSubject, bool) {
	s, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized", fmt.Errorf("%s: %w", r.URL.Path, ErrMissingSubject))
		return nil, false
	}
	return s, true
}
