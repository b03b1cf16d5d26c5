// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package api serves the gateway's HTTP surface on the WebSocket port.

Routes (chi router, see SetupChi):

	GET  /ws                                     WebSocket upgrade (?token=<jwt> or session cookie)
	GET  /healthz                                liveness
	GET  /readyz                                 readiness (store ping, fan-out listener)
	GET  /metrics                                Prometheus exposition
	GET  /api/v1/peers/{peerId}/messages         history page (?limit=1..50&cursor=<messageId>)
	POST /api/v1/conversations/read              mark a conversation read
	POST /api/v1/conversations/archive           archive for the caller
	POST /api/v1/conversations/unarchive         unarchive for the caller
	POST /api/v1/conversations/{id}/pin          toggle pinned
	POST /api/v1/conversations/{id}/mute         toggle muted

/ws keeps the behaviour browsers already rely on: a plain GET answers
200 "WebSocket Server", a failed authentication answers 401 "Unauthorized"
and a failed upgrade answers 500.

REST responses use the models.APIResponse envelope:

	{"status":"success","data":{...},"metadata":{"timestamp":"..."}}
	{"status":"error","error":{"code":"NOT_FOUND","message":"..."},"metadata":{...}}
*/
package api
