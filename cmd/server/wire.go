// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/database"
	"github.com/tomtom215/parley/internal/logging"
)

const sessionCacheSize = 10000

// openStore returns the configured store. pool is nil for the memory driver.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (database.Store, *pgxpool.Pool, error) {
	switch cfg.Driver {
	case "memory":
		logging.Warn().Msg("Using in-memory store, data is lost on restart")
		return database.NewMemory(), nil, nil
	case "", "postgres":
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		logging.Info().Int32("max_conns", cfg.MaxConns).Msg("Database initialized successfully")
		return db, db.Pool(), nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// newAuthenticator tries the bearer token first and falls back to the
// session cookie.
func newAuthenticator(cfg config.AuthConfig, sessions auth.SessionLookup) auth.Authenticator {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	jwks := auth.NewJWKSCache(cfg.JWKSURL(), client, cfg.JWKSCacheTTL)

	if cfg.SessionCacheTTL > 0 {
		sessions = auth.NewCachingSessionLookup(sessions, sessionCacheSize, cfg.SessionCacheTTL)
	}

	return auth.NewChainAuthenticator(
		auth.NewTokenAuthenticator(jwks, auth.TokenConfig{
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			Leeway:   cfg.Leeway,
		}),
		auth.NewSessionAuthenticator(sessions, cfg.SessionCookie),
	)
}
