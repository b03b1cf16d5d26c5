// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package testinfra provides test infrastructure for integration testing with containers.
//
// This package uses testcontainers-go to start the services the gateway talks
// to in production: PostgreSQL (persistence and LISTEN/NOTIFY fan-out) and
// Redis (alternative fan-out driver).
//
//	func TestStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//
//	    db, err := database.New(ctx, &config.DatabaseConfig{URL: pg.URL})
//	    // ...
//	}
//
// All files are behind the integration build tag; run them with
//
//	go test -tags integration ./...
//
// Tests are skipped gracefully if Docker is unavailable.
package testinfra
