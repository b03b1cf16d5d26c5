// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package websocket runs the socket side of one gateway connection.

A Client binds a gorilla/websocket connection to a registry.Conn and runs
two goroutines for it:

  - readPump: reads text frames, applies the read limit and the per-socket
    inbound rate limit, and hands each frame to the FrameHandler
  - writePump: drains the registry connection's outbound queue and sends
    keepalive pings

	 socket ──► readPump ──► FrameHandler (gateway)
	 socket ◄── writePump ◄── registry.Conn queue ◄── Registry.SendTo

Closing the registry connection closes its queue, which makes the write pump
send a close frame and tear the socket down. A read error closes the
registry connection, so either side ends both pumps.

Usage:

	client := websocket.NewClient(ws, conn, websocket.DefaultLimits(), onFrame)
	client.Run(ctx) // blocks until the socket is gone
*/
package websocket
