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
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

// TokenQueryParam is the query parameter browsers use to pass the token on upgrade.
const TokenQueryParam = "token"

// signingMethods are the algorithms accepted from the JWKS issuer.
var signingMethods = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// KeySource resolves verification keys. JWKSCache implements it.
type KeySource interface {
	GetKey(ctx context.Context, kid string) (any, error)
	Invalidate()
}

// jwksKeySource adapts JWKSCache's typed return to KeySource.
type jwksKeySource struct{ cache *JWKSCache }

func (s jwksKeySource) GetKey(ctx context.Context, kid string) (any, error) {
	return s.cache.GetKey(ctx, kid)
}

func (s jwksKeySource) Invalidate() { s.cache.Invalidate() }

// TokenConfig tunes token verification.
type TokenConfig struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// TokenAuthenticator verifies bearer JWTs against a rotating key set.
type TokenAuthenticator struct {
	keys   KeySource
	parser *jwt.Parser
}

// NewTokenAuthenticator creates a token authenticator backed by a JWKS cache.
func NewTokenAuthenticator(cache *JWKSCache, cfg TokenConfig) *TokenAuthenticator {
	return newTokenAuthenticator(jwksKeySource{cache: cache}, cfg)
}

func newTokenAuthenticator(keys KeySource, cfg TokenConfig) *TokenAuthenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(signingMethods),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &TokenAuthenticator{keys: keys, parser: jwt.NewParser(opts...)}
}

// Authenticate extracts the token and verifies it. On a verification failure
// the key set is invalidated once so a rotated key is picked up by the next
// attempt; the token is not re-verified within this request.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error) {
	tokenStr := extractToken(r)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}

	subject, err := a.verify(ctx, tokenStr)
	metrics.RecordAuth(a.Name(), resultLabel(err))
	return subject, err
}

func (a *TokenAuthenticator) verify(ctx context.Context, tokenStr string) (*AuthSubject, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := a.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return a.keys.GetKey(ctx, kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthenticatorUnavailable):
			return nil, err
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredCredentials
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		a.keys.Invalidate()
		logging.Debug().Err(err).Msg("token verification failed, JWKS invalidated")
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidCredentials)
	}

	subject := &AuthSubject{
		ID:         claims.Subject,
		Issuer:     claims.Issuer,
		AuthMethod: AuthModeJWT,
	}
	if claims.ExpiresAt != nil {
		subject.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return subject, nil
}

// Name returns the authenticator name.
func (a *TokenAuthenticator) Name() string {
	return string(AuthModeJWT)
}

// Priority returns the authenticator priority. Tokens are tried first.
func (a *TokenAuthenticator) Priority() int {
	return 10
}

// extractToken reads the token from the query string, then the Authorization header.
func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}
