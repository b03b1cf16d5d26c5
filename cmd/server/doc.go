// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package main is the entry point for the Parley gateway.

Parley delivers one-to-one chat messages, typing signals, read receipts and
reactions over WebSockets. Several gateway processes can run behind a load
balancer; a fan-out bus carries events between them.

# Application Architecture

	RootSupervisor ("parley")
	├── MessagingSupervisor ("messaging-layer")
	│   └── Fan-out listener (postgres, nats, redis or memory)
	└── APISupervisor ("api-layer")
	    └── HTTP server (/ws, /api/v1, /healthz, /readyz, /metrics)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and an optional YAML file
 2. Database: PostgreSQL via pgx (or the in-memory store for development)
 3. Fan-out bus and the relay that pushes remote events to local sockets
 4. Connection registry, gateway handler and the assistant peer
 5. Authentication: JWKS bearer tokens, then the session cookie
 6. HTTP server under the supervisor tree

# Configuration

Common environment variables:

	WS_PORT            gateway port (default 3001)
	PORT               port of the web app serving /api/auth/jwks (default 3000)
	DATABASE_URL       PostgreSQL connection string
	FANOUT_DRIVER      postgres, nats, redis or memory
	OPENAI_API_KEY     enables assistant replies
	LOG_LEVEL          trace, debug, info, warn or error

# Signal Handling

On SIGINT or SIGTERM the supervisor cancels every service. The HTTP server
stops accepting requests, open WebSocket connections are closed, pending
assistant replies are awaited and the bus and database are closed.
*/
package main
