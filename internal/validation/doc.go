// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package validation provides struct validation using go-playground/validator v10.
//
// It holds a thread-safe singleton validator shared by the envelope parser and
// the REST handlers. Field names in errors come from json tags, so a missing
// CHAT receiver is reported as "receiverId is required".
//
//	type ChatPayload struct {
//	    ReceiverID string `json:"receiverId" validate:"required"`
//	    Content    string `json:"content" validate:"notblank"`
//	}
//
//	if err := validation.ValidateStruct(&p); err != nil {
//	    apiErr := err.ToAPIError()
//	    // ...
//	}
package validation
