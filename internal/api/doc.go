// Package api implements the gateway's HTTP server.
//
// One chi router serves two surfaces:
//   - the protocol routes under the configured base path (default /wd/hub),
//     installed by the jsonwp dispatcher
//   - the admin API under /api/v1: health, metrics, the route table with
//     its digest, the command audit trail and a WebSocket event stream
//
// Middleware (request ID, logging, recovery, CORS, body limit) wraps both.
// Unmatched paths under the base path get the protocol's 404
// UnknownCommand envelope; all other unmatched paths get the admin error
// body.
//
// # WebSocket
//
// Clients connect to /api/v1/ws and subscribe to "command.dispatched" to
// receive one event per protocol command:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["command.dispatched"]}}
//
// Adding "sessions":["<id>"] to the payload narrows the stream to those
// sessions.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
