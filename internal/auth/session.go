// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/parley/internal/database"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

// SecureCookiePrefix is added to the session cookie name when served over HTTPS.
const SecureCookiePrefix = "__Secure-"

// SessionLookup resolves a session token to a user ID. database.Store implements it.
type SessionLookup interface {
	SessionUser(ctx context.Context, token string, now time.Time) (string, error)
}

// SessionAuthenticator authenticates same-origin requests by the auth server's
// session cookie.
type SessionAuthenticator struct {
	lookup      SessionLookup
	cookieNames []string
	now         func() time.Time
}

// NewSessionAuthenticator creates a session authenticator for cookieName and
// its __Secure- variant.
func NewSessionAuthenticator(lookup SessionLookup, cookieName string) *SessionAuthenticator {
	return &SessionAuthenticator{
		lookup:      lookup,
		cookieNames: []string{SecureCookiePrefix + cookieName, cookieName},
		now:         time.Now,
	}
}

// Authenticate looks the cookie's token up in the session store.
// A store outage is reported as ErrAuthenticatorUnavailable.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error) {
	token := a.extractToken(r)
	if token == "" {
		return nil, ErrNoCredentials
	}

	userID, err := a.lookup.SessionUser(ctx, token, a.now())
	switch {
	case err == nil && userID != "":
		metrics.RecordAuth(a.Name(), "success")
		return &AuthSubject{ID: userID, AuthMethod: AuthModeSession}, nil
	case err == nil, errors.Is(err, database.ErrNotFound):
		metrics.RecordAuth(a.Name(), "invalid")
		return nil, ErrInvalidCredentials
	default:
		metrics.RecordAuth(a.Name(), "unavailable")
		logging.Warn().Err(err).Msg("session lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrAuthenticatorUnavailable, err)
	}
}

// Name returns the authenticator name.
func (a *SessionAuthenticator) Name() string {
	return string(AuthModeSession)
}

// Priority returns the authenticator priority. Sessions are the fallback.
func (a *SessionAuthenticator) Priority() int {
	return 20
}

// extractToken returns the session token from the first matching cookie.
// Signed values ("<token>.<signature>", URL-encoded) are reduced to the token.
func (a *SessionAuthenticator) extractToken(r *http.Request) string {
	for _, name := range a.cookieNames {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			continue
		}
		value := c.Value
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		if i := strings.IndexByte(value, '.'); i >= 0 {
			value = value[:i]
		}
		if value != "" {
			return value
		}
	}
	return ""
}
