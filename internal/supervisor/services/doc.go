// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package services provides suture.Service wrappers for Parley components.

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Runs drain hooks after Shutdown, which is where hijacked WebSocket
    connections are closed since http.Server does not track them

Fan-out (FanoutService):
  - Wraps a listener whose Run blocks until its context ends
  - A Run that returns early is reported as a failure so suture restarts it
*/
package services
