package jsonwp

import (
	"crypto/sha1" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known command names the dispatcher treats specially.
const (
	CommandCreateSession = "createSession"
	CommandDeleteSession = "deleteSession"
	CommandGetStatus     = "getStatus"
	CommandGetSessions   = "getSessions"
)

// SessionIDParam is the path capture holding the session token.
const SessionIDParam = "sessionId"

// noSessionCommands are the commands that may run without a live session.
var noSessionCommands = map[string]struct{}{
	CommandCreateSession: {},
	CommandGetStatus:     {},
	CommandGetSessions:   {},
}

// IsSessionCommand reports whether command requires an existing session.
func IsSessionCommand(command string) bool {
	_, ok := noSessionCommands[command]
	return !ok
}

// allowedMethods are the HTTP methods used by the protocol.
var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodDelete: {},
}

// RequiredSets holds alternative sets of required body fields.
// A request matches if its fields equal any one set (plus optional fields).
//
// In YAML a flat list is a single alternative and a list of lists is a
// set of alternatives:
//
//	required: [url]
//	required: [[id], [name]]
type RequiredSets [][]string

// UnmarshalYAML accepts both the flat and the nested form.
func (r *RequiredSets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("required: expected a sequence, got %s", node.Tag)
	}
	if len(node.Content) == 0 {
		*r = nil
		return nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var sets [][]string
		if err := node.Decode(&sets); err != nil {
			return fmt.Errorf("required: %w", err)
		}
		*r = sets
		return nil
	}
	var flat []string
	if err := node.Decode(&flat); err != nil {
		return fmt.Errorf("required: %w", err)
	}
	*r = RequiredSets{flat}
	return nil
}

// Flatten returns every field named by any alternative, in declared order.
func (r RequiredSets) Flatten() []string {
	var out []string
	for _, set := range r {
		out = append(out, set...)
	}
	return out
}

// PayloadParams describes the body fields a command accepts.
type PayloadParams struct {
	Required RequiredSets `yaml:"required,omitempty" json:"required,omitempty"`
	Optional []string     `yaml:"optional,omitempty" json:"optional,omitempty"`
	Wrap     string       `yaml:"wrap,omitempty" json:"wrap,omitempty"`
	Unwrap   string       `yaml:"unwrap,omitempty" json:"unwrap,omitempty"`
}

// CommandSpec identifies the backend operation behind a route.
// An empty Command marks a route that is deliberately unimplemented.
type CommandSpec struct {
	Command string
	Params  *PayloadParams
}

// Route binds an HTTP method and path pattern to a CommandSpec.
// Path is relative to the protocol base path and uses ":name" captures,
// e.g. "/session/:sessionId/element/:elementId/click".
type Route struct {
	Method string
	Path   string
	Spec   CommandSpec
}

// Captures returns the names of the path captures in path order.
func (r Route) Captures() []string {
	var names []string
	for _, seg := range strings.Split(r.Path, "/") {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			names = append(names, seg[1:])
		}
	}
	return names
}

// chiPattern converts ":name" captures to chi's "{name}" form.
func (r Route) chiPattern() string {
	segs := strings.Split(r.Path, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			segs[i] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segs, "/")
}

// HasSessionCapture reports whether the route path carries a session token.
func (r Route) HasSessionCapture() bool {
	for _, name := range r.Captures() {
		if name == SessionIDParam {
			return true
		}
	}
	return false
}

// RouteTable is the ordered set of routes served by a Dispatcher.
type RouteTable []Route

// Validate checks the table for structural problems.
// It reports every problem found, not just the first.
func (t RouteTable) Validate() error {
	var errs []string
	seen := make(map[string]struct{}, len(t))
	commands := make(map[string]string, len(t))

	for i, r := range t {
		if _, ok := allowedMethods[r.Method]; !ok {
			errs = append(errs, fmt.Sprintf("route %d: method %q not allowed", i, r.Method))
		}
		if !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Sprintf("route %d: path %q must start with /", i, r.Path))
		}
		key := r.Method + " " + r.Path
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Sprintf("route %d: duplicate route %s", i, key))
		}
		seen[key] = struct{}{}

		if r.Spec.Command == "" {
			continue
		}
		if prev, dup := commands[r.Spec.Command]; dup {
			errs = append(errs, fmt.Sprintf("route %d: command %q already bound to %s", i, r.Spec.Command, prev))
		}
		commands[r.Spec.Command] = key
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRouteTable, strings.Join(errs, "; "))
	}
	return nil
}

// Lookup returns the route bound to command.
func (t RouteTable) Lookup(command string) (Route, bool) {
	for _, r := range t {
		if r.Spec.Command == command {
			return r, true
		}
	}
	return Route{}, false
}

// Commands returns every implemented command name in table order.
func (t RouteTable) Commands() []string {
	out := make([]string, 0, len(t))
	for _, r := range t {
		if r.Spec.Command != "" {
			out = append(out, r.Spec.Command)
		}
	}
	return out
}

// Digest fingerprints the protocol shape of the table: the first 8 hex
// characters of a SHA-1 over each route's path, method, command and
// parameter names, in table order. Any change to it is a protocol change.
func (t RouteTable) Digest() string {
	h := sha1.New() //nolint:gosec // fingerprint, not a security boundary
	for _, r := range t {
		_, _ = io.WriteString(h, r.Path)
		_, _ = io.WriteString(h, r.Method)
		_, _ = io.WriteString(h, r.Spec.Command)
		if r.Spec.Params == nil {
			continue
		}
		for _, f := range r.Spec.Params.Required.Flatten() {
			_, _ = io.WriteString(h, f)
		}
		for _, f := range r.Spec.Params.Optional {
			_, _ = io.WriteString(h, f)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// Envelope is the JSON Wire Protocol response body.
// A nil SessionID is encoded as null.
type Envelope struct {
	Status    int     `json:"status"`
	Value     any     `json:"value"`
	SessionID *string `json:"sessionId"`
}

// NewSession is what a driver returns from createSession.
type NewSession struct {
	ID           string
	Capabilities any
}

// Outcome is the response computed for one request.
// Exactly one of Text or Envelope is meaningful: Text is used for the
// 400 and 501 classes, Envelope for everything else.
type Outcome struct {
	HTTPStatus int
	Text       string
	Envelope   *Envelope
}

// IsText reports whether the outcome is sent as a plain-text body.
func (o Outcome) IsText() bool {
	return o.Envelope == nil
}
