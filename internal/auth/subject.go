// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package auth resolves the user behind an inbound request.
//
// Two paths exist, tried in order by ChainAuthenticator:
//
//   - TokenAuthenticator: a signed JWT from the ?token= query parameter (or an
//     Authorization: Bearer header), verified against the auth server's JWKS
//   - SessionAuthenticator: the auth server's session cookie, looked up in the
//     shared session table
//
// The resolved AuthSubject is attached to the connection for its lifetime.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthMode identifies how a subject was authenticated.
type AuthMode string

const (
	// AuthModeJWT is a bearer token verified against the JWKS.
	AuthModeJWT AuthMode = "jwt"

	// AuthModeSession is a session cookie looked up in the session store.
	AuthModeSession AuthMode = "session"

	// AuthModeChain tries each configured mode in priority order.
	AuthModeChain AuthMode = "chain"
)

// String returns the string representation of AuthMode.
func (m AuthMode) String() string {
	return string(m)
}

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrAuthenticatorUnavailable indicates the auth provider is unreachable.
	ErrAuthenticatorUnavailable = errors.New("authenticator unavailable")
)

// Authenticator defines the interface for authentication providers.
type Authenticator interface {
	// Authenticate extracts and validates credentials from the request.
	Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error)

	// Name returns the authenticator's name for logging.
	Name() string

	// Priority returns the authenticator's priority in a chain.
	// Lower values are tried first.
	Priority() int
}

// AuthSubject represents an authenticated user.
type AuthSubject struct {
	// ID is the user ID: the token's 'sub' claim or the session's userId.
	ID string `json:"id"`

	// Issuer is the token's 'iss' claim, empty for sessions.
	Issuer string `json:"issuer,omitempty"`

	// AuthMethod indicates how the subject was authenticated.
	AuthMethod AuthMode `json:"auth_method"`

	// ExpiresAt is when the credential expires (Unix seconds), 0 if unknown.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

type subjectKey struct{}

// ContextWithSubject attaches an authenticated subject to ctx.
func ContextWithSubject(ctx context.Context, s *AuthSubject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

// SubjectFromContext returns the subject attached by ContextWithSubject.
func SubjectFromContext(ctx context.Context) (*AuthSubject, bool) {
	s, ok := ctx.Value(subjectKey{}).(*AuthSubject)
	return s, ok && s != nil
}

// resultLabel maps an authentication error to a metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, ErrExpiredCredentials):
		return "expired"
	case errors.Is(err, ErrAuthenticatorUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}
