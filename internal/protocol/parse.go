// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/validation"
)

// Reason classifies a protocol error.
type Reason string

const (
	ReasonMalformed      Reason = "malformed"
	ReasonUnknownType    Reason = "unknown_type"
	ReasonBadPayload     Reason = "bad_payload"
	ReasonInvalidPayload Reason = "invalid_payload"
)

// Error is returned for frames that cannot be turned into an Incoming.
type Error struct {
	Reason Reason
	Type   Type
	Err    error
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("protocol %s (%s): %v", e.Reason, e.Type, e.Err)
	}
	return fmt.Sprintf("protocol %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Parse decodes and validates one inbound frame.
func Parse(frame []byte) (Incoming, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Incoming{}, &Error{Reason: ReasonMalformed, Err: err}
	}

	in := Incoming{Type: env.Type}
	var target any
	switch env.Type {
	case TypeChat:
		in.Chat = &ChatRequest{}
		target = in.Chat
	case TypeTyping:
		in.Typing = &TypingRequest{}
		target = in.Typing
	case TypeRead:
		in.Read = &ReadRequest{}
		target = in.Read
	case TypeReaction:
		in.Reaction = &ReactionRequest{}
		target = in.Reaction
	default:
		return Incoming{}, &Error{Reason: ReasonUnknownType, Type: env.Type, Err: fmt.Errorf("unsupported type %q", env.Type)}
	}

	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return Incoming{}, &Error{Reason: ReasonBadPayload, Type: env.Type, Err: errors.New("missing payload")}
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return Incoming{}, &Error{Reason: ReasonBadPayload, Type: env.Type, Err: err}
	}
	if verr := validation.ValidateStruct(target); verr != nil {
		return Incoming{}, &Error{Reason: ReasonInvalidPayload, Type: env.Type, Err: verr}
	}

	return in, nil
}

// Marshal encodes an outgoing envelope.
func Marshal(out Outgoing) ([]byte, error) {
	return json.Marshal(out)
}
