// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package client is the peer side of the gateway protocol.

It holds the connection logic a chat client needs to stay attached to the
gateway:

  - Backoff: the reconnect state machine. Delays grow as
    min(1000 * 2^attempt, 30000) milliseconds and reset on a successful open.
  - Typist: throttles outgoing typing signals to one per 300ms and sends
    "stopped typing" after 2000ms without input.
  - PeerTyping: tracks peers that are typing and clears each indicator after
    3000ms, so a lost stop signal never leaves it stuck.
  - Reconnector: fetches a credential, dials /ws?token=..., delivers inbound
    envelopes and reconnects on close or credential failure.

Timers go through a Clock so tests can drive them without sleeping.
*/
package client
