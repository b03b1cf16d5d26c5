// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package auth

import (
	"context"
	"errors"
	"net/http"
	"sort"
)

// ChainAuthenticator tries authenticators in priority order until one yields a
// subject.
//
// Error handling:
//   - ErrNoCredentials, ErrInvalidCredentials, ErrExpiredCredentials: try next
//   - ErrAuthenticatorUnavailable: try next (logged by the authenticator)
//   - Other errors: stop and return error
//
// When every authenticator fails, the most informative error is returned:
// a rejected credential beats an outage, which beats no credentials at all.
type ChainAuthenticator struct {
	authenticators []Authenticator
}

// NewChainAuthenticator creates a chain from the given authenticators.
func NewChainAuthenticator(authenticators ...Authenticator) *ChainAuthenticator {
	c := &ChainAuthenticator{
		authenticators: append([]Authenticator(nil), authenticators...),
	}
	sort.SliceStable(c.authenticators, func(i, j int) bool {
		return c.authenticators[i].Priority() < c.authenticators[j].Priority()
	})
	return c
}

// Authenticate tries each authenticator in priority order.
func (c *ChainAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error) {
	best := ErrNoCredentials

	for _, a := range c.authenticators {
		subject, err := a.Authenticate(ctx, r)
		if err == nil {
			return subject, nil
		}
		if !shouldTryNext(err) {
			return nil, err
		}
		if errorRank(err) > errorRank(best) {
			best = err
		}
	}

	return nil, best
}

// Name returns the authenticator name.
func (c *ChainAuthenticator) Name() string {
	return string(AuthModeChain)
}

// Priority returns the authenticator priority.
func (c *ChainAuthenticator) Priority() int {
	return 0
}

// shouldTryNext returns true if the error indicates we should try the next authenticator.
func shouldTryNext(err error) bool {
	return errors.Is(err, ErrNoCredentials) ||
		errors.Is(err, ErrAuthenticatorUnavailable) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrExpiredCredentials)
}

func errorRank(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrExpiredCredentials):
		return 2
	case errors.Is(err, ErrAuthenticatorUnavailable):
		return 1
	default:
		return 0
	}
}
