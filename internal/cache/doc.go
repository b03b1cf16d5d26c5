// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package cache provides a bounded LRU cache with per-entry TTL.
//
// The auth package uses it to avoid a database round trip for every request
// that carries the same session cookie.
package cache
