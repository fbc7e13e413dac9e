// Package jsonwp implements the JSON Wire Protocol dispatch pipeline.
//
// This package provides:
//   - The closed error taxonomy and its mapping to HTTP responses
//   - The parameter engine (wrap/unwrap, exact-match validation, positional args)
//   - A per-command semantic validator registry
//   - The proxy decision engine for forwarding sessions to an upstream server
//   - The Dispatcher, which installs one handler per route on a chi router
//
// # Architecture
//
// The dispatcher sits between the HTTP transport and a backend Driver. For
// every request it runs:
//
//	proxy check → spec resolve → wrap/unwrap → validate → session check →
//	marshal args → semantic validate → invoke → shape response
//
// Any stage may fail; failures are classified exactly once, at the end, into
// a 400 (bad parameters), 501 (not implemented) or 500 (protocol error)
// response.
//
// # Backends
//
// A backend implements Driver. It may also implement SessionRouter to hand
// each session to a different Driver, and Proxier to forward session traffic
// to an upstream JSON Wire Protocol server.
//
// Thread Safety: a Dispatcher is immutable after NewDispatcher and safe for
// concurrent use. Drivers are responsible for their own synchronisation.
package jsonwp
