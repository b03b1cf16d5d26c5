// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package gateway

import (
	"errors"
	"fmt"

	"github.com/tomtom215/parley/internal/protocol"
)

// Kind classifies an operation failure.
type Kind int

const (
	// KindProtocol is a bad request from the client: malformed frame, unknown
	// type, invalid payload or an operation the user may not perform.
	KindProtocol Kind = iota + 1
	// KindPersistence is a store failure, including missing rows.
	KindPersistence
	// KindFanout is a failed cross-instance publish. Local delivery already happened.
	KindFanout
	// KindCollaborator is a failure of the assistant or another outside service.
	KindCollaborator
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindPersistence:
		return "persistence"
	case KindFanout:
		return "fanout"
	case KindCollaborator:
		return "collaborator"
	default:
		return "unknown"
	}
}

// OpError is returned by Handler operations.
type OpError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// ErrNotParticipant is returned when a user acts on a conversation they are not part of.
var ErrNotParticipant = errors.New("not a conversation participant")

// KindOf classifies err. Parse errors are protocol errors; anything else
// that is not an *OpError has kind zero, reported as "unknown".
func KindOf(err error) Kind {
	var op *OpError
	if errors.As(err, &op) {
		return op.Kind
	}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return KindProtocol
	}
	return 0
}
