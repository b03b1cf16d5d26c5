// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package auth

import (
	"context"
	"time"

	"github.com/tomtom215/parley/internal/cache"
)

// CachingSessionLookup remembers resolved session tokens for a short TTL.
// Only successful lookups are cached, so a revoked session can outlive its
// revocation by at most the TTL.
type CachingSessionLookup struct {
	next  SessionLookup
	cache *cache.LRU[string, string]
}

// NewCachingSessionLookup wraps next with an LRU of the given size and TTL.
func NewCachingSessionLookup(next SessionLookup, capacity int, ttl time.Duration) *CachingSessionLookup {
	return &CachingSessionLookup{next: next, cache: cache.NewLRU[string, string](capacity, ttl)}
}

// SessionUser implements SessionLookup.
func (c *CachingSessionLookup) SessionUser(ctx context.Context, token string, now time.Time) (string, error) {
	if userID, ok := c.cache.Get(token); ok {
		return userID, nil
	}
	userID, err := c.next.SessionUser(ctx, token, now)
	if err != nil {
		return "", err
	}
	c.cache.Add(token, userID)
	return userID, nil
}
