// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

// ErrKeyNotFound is returned when no JWKS key matches a token's kid.
var ErrKeyNotFound = errors.New("signing key not found")

// jsonWebKey is the subset of RFC 7517 fields needed for RSA, EC and OKP keys.
type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// minRefreshInterval is the least time between two fetches once a key set is
// cached. Invalidations and failed refreshes inside it keep the cached keys.
const minRefreshInterval = 30 * time.Second

// JWKSCache fetches the auth server's JWKS lazily and caches it with a TTL.
// It is safe for concurrent use.
type JWKSCache struct {
	uri        string
	httpClient *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time

	mu          sync.RWMutex
	keys        map[string]crypto.PublicKey
	fetched     time.Time
	lastAttempt time.Time
}

// NewJWKSCache creates a new JWKS cache. Nothing is fetched until the first lookup.
func NewJWKSCache(uri string, client *http.Client, ttl time.Duration) *JWKSCache {
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	return &JWKSCache{
		uri:        uri,
		httpClient: client,
		ttl:        ttl,
		minRefresh: minRefreshInterval,
		now:        time.Now,
		keys:       make(map[string]crypto.PublicKey),
	}
}

// URI returns the JWKS endpoint URI.
func (c *JWKSCache) URI() string {
	return c.uri
}

// GetKey returns the key for kid. An empty kid matches when the set holds exactly one key.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	keys, err := c.keySet(ctx)
	if err != nil {
		return nil, err
	}

	if kid == "" && len(keys) == 1 {
		for _, k := range keys {
			return k, nil
		}
	}
	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Invalidate marks the cached set stale so the next lookup refetches it.
// The stale keys are kept as a fallback should that fetch fail. It is a no-op
// within minRefreshInterval of the last fetch, so a stream of forged tokens
// cannot turn every request into a fetch.
func (c *JWKSCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.throttled() {
		return
	}
	c.fetched = time.Time{}
}

// keySet returns the cached keys, refreshing them when stale.
func (c *JWKSCache) keySet(ctx context.Context) (map[string]crypto.PublicKey, error) {
	c.mu.RLock()
	if c.fresh() {
		keys := c.keys
		c.mu.RUnlock()
		return keys, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if c.fresh() {
		return c.keys, nil
	}
	if len(c.keys) > 0 && c.throttled() {
		return c.keys, nil
	}

	c.lastAttempt = c.now()
	keys, err := c.fetch(ctx)
	if err != nil {
		metrics.JWKSRefreshes.WithLabelValues("error").Inc()
		if len(c.keys) > 0 {
			logging.Warn().Err(err).Str("uri", c.uri).Msg("JWKS refresh failed, using stale keys")
			return c.keys, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthenticatorUnavailable, err)
	}

	metrics.JWKSRefreshes.WithLabelValues("success").Inc()
	logging.Debug().Str("uri", c.uri).Int("keys", len(keys)).Msg("JWKS refreshed")
	c.keys = keys
	c.fetched = c.lastAttempt
	return c.keys, nil
}

// fresh reports whether the cached set is within its TTL. Caller holds c.mu.
func (c *JWKSCache) fresh() bool {
	return !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl
}

// throttled reports whether the last fetch attempt is too recent for another.
// Caller holds c.mu.
func (c *JWKSCache) throttled() bool {
	return !c.lastAttempt.IsZero() && c.now().Sub(c.lastAttempt) < c.minRefresh
}

// fetch downloads and decodes the key set.
func (c *JWKSCache) fetch(ctx context.Context) (map[string]crypto.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS fetch failed with status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		key, err := parseJWK(jwk)
		if err != nil {
			logging.Debug().Err(err).Str("kid", jwk.Kid).Msg("skipping unusable JWKS key")
			continue
		}
		keys[jwk.Kid] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("JWKS contains no usable signing keys")
	}
	return keys, nil
}

// parseJWK converts one JWK into a public key usable by golang-jwt.
func parseJWK(jwk jsonWebKey) (crypto.PublicKey, error) {
	switch jwk.Kty {
	case "RSA":
		nBytes, err := base64URLDecodeJWKS(jwk.N)
		if err != nil {
			return nil, fmt.Errorf("decode n: %w", err)
		}
		eBytes, err := base64URLDecodeJWKS(jwk.E)
		if err != nil {
			return nil, fmt.Errorf("decode e: %w", err)
		}
		e := 0
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}
		if e == 0 {
			return nil, errors.New("invalid RSA exponent")
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil

	case "EC":
		var curve elliptic.Curve
		switch jwk.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported EC curve %q", jwk.Crv)
		}
		xBytes, err := base64URLDecodeJWKS(jwk.X)
		if err != nil {
			return nil, fmt.Errorf("decode x: %w", err)
		}
		yBytes, err := base64URLDecodeJWKS(jwk.Y)
		if err != nil {
			return nil, fmt.Errorf("decode y: %w", err)
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(xBytes),
			Y:     new(big.Int).SetBytes(yBytes),
		}, nil

	case "OKP":
		if jwk.Crv != "Ed25519" {
			return nil, fmt.Errorf("unsupported OKP curve %q", jwk.Crv)
		}
		x, err := base64URLDecodeJWKS(jwk.X)
		if err != nil {
			return nil, fmt.Errorf("decode x: %w", err)
		}
		if len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid Ed25519 key length %d", len(x))
		}
		return ed25519.PublicKey(x), nil

	default:
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}
}

// base64URLDecodeJWKS decodes a base64url encoded string, with or without padding.
func base64URLDecodeJWKS(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}

	return base64.URLEncoding.DecodeString(s)
}
