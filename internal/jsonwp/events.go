package jsonwp

import (
	"context"
	"time"
)

// CommandEvent describes one completed protocol request.
type CommandEvent struct {
	Command        string        `json:"command"`
	Method         string        `json:"method"`
	Path           string        `json:"path"`
	SessionID      string        `json:"session_id,omitempty"`
	HTTPStatus     int           `json:"http_status"`
	ProtocolStatus int           `json:"protocol_status"`
	Proxied        bool          `json:"proxied"`
	Duration       time.Duration `json:"duration_ns"`
	Error          string        `json:"error,omitempty"`
	Time           time.Time     `json:"time"`
}

// Observer receives an event after every dispatched request.
// Implementations must not block; the dispatcher calls them inline.
type Observer interface {
	CommandDispatched(ctx context.Context, ev CommandEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev CommandEvent)

// CommandDispatched calls f(ctx, ev).
func (f ObserverFunc) CommandDispatched(ctx context.Context, ev CommandEvent) {
	f(ctx, ev)
}
