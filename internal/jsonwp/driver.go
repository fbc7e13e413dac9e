package jsonwp

import (
	"context"
	"net/http"
)

// Driver is a backend that executes protocol commands.
//
// ExecuteCommand receives the command name and the positional arguments
// built by MakeArgs. It returns a JSON-encodable value, an Envelope to pass
// an upstream status through, a NewSession for createSession, or an error.
// Errors of type *Error keep their kind; anything else is reported as
// UnknownError.
type Driver interface {
	SessionExists(sessionID string) bool
	ExecuteCommand(ctx context.Context, command string, args ...any) (any, error)
}

// SessionRouter is implemented by drivers that delegate each session to a
// different Driver. A nil result means "handle it yourself".
type SessionRouter interface {
	DriverForSession(sessionID string) Driver
}

// Proxier is implemented by drivers that can forward a session's traffic
// to an upstream JSON Wire Protocol server.
type Proxier interface {
	// ProxyActive reports whether requests for sessionID should be proxied.
	ProxyActive(sessionID string) bool

	// ProxyAvoidList returns the rules exempting requests from proxying.
	// Rules must already be valid (built with ParseAvoidRules or checked
	// with ValidateAvoidRule); an invalid rule is a configuration error.
	ProxyAvoidList(sessionID string) []AvoidRule

	// ProxyReqRes forwards r upstream and writes the upstream response to w.
	ProxyReqRes(w http.ResponseWriter, r *http.Request) error
}

// Logger is the logging surface the dispatcher needs.
// *logging.Logger and *slog.Logger both satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
