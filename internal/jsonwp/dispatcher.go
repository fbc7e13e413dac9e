package jsonwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"

	// maxLoggedArgs caps the rendered argument list in invocation logs.
	maxLoggedArgs = 150
)

// Options configures a Dispatcher.
type Options struct {
	// Driver is the backend that executes commands. Required.
	Driver Driver

	// Routes is the route table to serve. Required.
	Routes RouteTable

	// Validators holds per-command semantic checks. Nil disables them.
	Validators *ValidatorRegistry

	// BasePath prefixes every route. Defaults to DefaultBasePath.
	BasePath string

	Logger   Logger
	Observer Observer
}

// Dispatcher turns a route table into HTTP handlers that run the full
// protocol pipeline against a Driver.
type Dispatcher struct {
	driver     Driver
	routes     RouteTable
	validators *ValidatorRegistry
	basePath   string
	log        Logger
	observer   Observer
}

// NewDispatcher validates opts and returns a ready Dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Driver == nil {
		return nil, ErrMissingDriver
	}
	if err := opts.Routes.Validate(); err != nil {
		return nil, err
	}

	basePath := strings.TrimRight(opts.BasePath, "/")
	if opts.BasePath == "" {
		basePath = DefaultBasePath
	}
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		return nil, fmt.Errorf("jsonwp: base path %q must start with /", opts.BasePath)
	}

	var log Logger = noopLogger{}
	if opts.Logger != nil {
		log = opts.Logger
	}

	routes := make(RouteTable, len(opts.Routes))
	copy(routes, opts.Routes)

	return &Dispatcher{
		driver:     opts.Driver,
		routes:     routes,
		validators: opts.Validators,
		basePath:   basePath,
		log:        log,
		observer:   opts.Observer,
	}, nil
}

// BasePath returns the prefix the routes are mounted under.
func (d *Dispatcher) BasePath() string {
	return d.basePath
}

// Routes returns a copy of the served route table.
func (d *Dispatcher) Routes() RouteTable {
	out := make(RouteTable, len(d.routes))
	copy(out, d.routes)
	return out
}

// Install registers one handler per route on r.
func (d *Dispatcher) Install(r chi.Router) {
	for _, route := range d.routes {
		r.MethodFunc(route.Method, d.basePath+route.chiPattern(), d.handlerFor(route))
	}
}

// NotFoundHandler answers unmatched protocol paths with a 404 carrying the
// UnknownCommand envelope.
func (d *Dispatcher) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := ResponseForError(NewError(KindUnknownCommand), nil)
		out.HTTPStatus = http.StatusNotFound
		d.writeOutcome(w, out)
		d.log.Debug("unknown protocol route", "method", r.Method, "path", r.URL.Path)
	}
}

// Owns reports whether path falls under the dispatcher's base path.
func (d *Dispatcher) Owns(path string) bool {
	return d.basePath == "" || path == d.basePath || strings.HasPrefix(path, d.basePath+"/")
}

// request carries the per-request state through the pipeline.
type request struct {
	route     Route
	captures  []PathParam
	sessionID string
	backend   Driver
	http      *http.Request
}

// result is what the pipeline produces before it is written.
type result struct {
	value     any
	sessionID *string
}

func (d *Dispatcher) handlerFor(route Route) http.HandlerFunc {
	names := route.Captures()

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		req := &request{route: route, http: r, captures: make([]PathParam, 0, len(names))}
		for _, name := range names {
			value := chi.URLParam(r, name)
			req.captures = append(req.captures, PathParam{Name: name, Value: value})
			if name == SessionIDParam {
				req.sessionID = value
			}
		}
		req.backend = d.backendFor(req.sessionID)

		ev := CommandEvent{
			Command:   route.Spec.Command,
			Method:    r.Method,
			Path:      r.URL.Path,
			SessionID: req.sessionID,
			Time:      start.UTC(),
		}

		if d.proxy(w, req, &ev) {
			d.notify(r.Context(), ev, start)
			return
		}

		res, err := d.run(r.Context(), req)
		var out Outcome
		if err != nil {
			pe := d.classify(req, err)
			out = ResponseForError(pe, requestSessionID(req))
			ev.ProtocolStatus = pe.Kind.Code
			ev.Error = pe.Error()
		} else {
			out = Outcome{
				HTTPStatus: http.StatusOK,
				Envelope:   &Envelope{Status: 0, Value: res.value, SessionID: res.sessionID},
			}
			if res.sessionID != nil {
				ev.SessionID = *res.sessionID
			}
		}

		ev.HTTPStatus = d.writeOutcome(w, out)
		d.notify(r.Context(), ev, start)
	}
}

// backendFor resolves the Driver handling sessionID.
func (d *Dispatcher) backendFor(sessionID string) Driver {
	if sessionID == "" {
		return d.driver
	}
	if router, ok := d.driver.(SessionRouter); ok {
		if backend := router.DriverForSession(sessionID); backend != nil {
			return backend
		}
	}
	return d.driver
}

// proxy forwards the request upstream when the backend asks for it.
// It reports whether the response has been handled.
func (d *Dispatcher) proxy(w http.ResponseWriter, req *request, ev *CommandEvent) bool {
	r := req.http
	should, err := ShouldProxy(req.backend, ProxyRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		SessionID: req.sessionID,
	}, req.route.Spec.Command, d.basePath)
	if err != nil {
		d.log.Error("proxy avoid list configuration is invalid", "session_id", req.sessionID, "error", err)
		pe := d.classify(req, err)
		ev.ProtocolStatus = pe.Kind.Code
		ev.Error = pe.Error()
		ev.HTTPStatus = d.writeOutcome(w, ResponseForError(pe, requestSessionID(req)))
		return true
	}
	if !should {
		return false
	}

	ev.Proxied = true
	pw := &proxyWriter{ResponseWriter: w}
	d.log.Debug("proxying request upstream", "method", r.Method, "path", r.URL.Path, "session_id", req.sessionID)

	if err := req.backend.(Proxier).ProxyReqRes(pw, r); err != nil {
		pe := NewProxyRequestError(err)
		d.log.Error("proxy request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		ev.ProtocolStatus = pe.Kind.Code
		ev.Error = pe.Error()
		if !pw.wroteHeader {
			ev.HTTPStatus = d.writeOutcome(pw, ResponseForError(pe, requestSessionID(req)))
			return true
		}
	}
	ev.HTTPStatus = pw.status
	return true
}

// run executes every local stage and returns the value to send, or the
// first failure.
func (d *Dispatcher) run(ctx context.Context, req *request) (result, error) {
	spec := req.route.Spec
	if spec.Command == "" {
		return result{}, NewError(KindNotImplemented)
	}

	raw, err := io.ReadAll(req.http.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return result{}, Errorf(KindBadParameters, "Request body exceeds %d bytes", tooLarge.Limit)
		}
		return result{}, fmt.Errorf("reading request body: %w", err)
	}
	body, err := DecodeBody(raw)
	if err != nil {
		return result{}, err
	}

	body = WrapParams(spec.Params, body)
	body = UnwrapParams(spec.Params, body)

	if err := CheckParams(spec.Params, body); err != nil {
		return result{}, err
	}

	if IsSessionCommand(spec.Command) && !req.backend.SessionExists(req.sessionID) {
		return result{}, NewError(KindNoSuchDriver)
	}

	args := MakeArgs(req.captures, body, spec.Params)
	if err := d.validators.Validate(spec.Command, args); err != nil {
		return result{}, err
	}

	d.log.Debug("calling driver command",
		"command", spec.Command,
		"args", describeArgs(args, maxLoggedArgs),
	)
	value, err := req.backend.ExecuteCommand(ctx, spec.Command, args...)
	if err != nil {
		return result{}, err
	}

	return d.shape(req, value)
}

// shape applies the command-specific result conventions.
func (d *Dispatcher) shape(req *request, value any) (result, error) {
	value, err := unpackEnvelope(value)
	if err != nil {
		return result{}, err
	}

	res := result{value: value, sessionID: requestSessionID(req)}

	switch req.route.Spec.Command {
	case CommandCreateSession:
		id, caps, err := newSessionResult(value)
		if err != nil {
			return result{}, err
		}
		res.value = caps
		res.sessionID = &id
	case CommandDeleteSession:
		res.value = nil
	}
	return res, nil
}

// unpackEnvelope turns a passed-through upstream envelope back into its
// value, or into an error when its status is non-zero.
func unpackEnvelope(value any) (any, error) {
	var env *Envelope
	switch v := value.(type) {
	case Envelope:
		env = &v
	case *Envelope:
		env = v
	default:
		return value, nil
	}
	if env == nil {
		return nil, nil
	}
	if env.Status != 0 {
		return nil, ErrorFromCode(env.Status, envelopeMessage(env.Value))
	}
	return env.Value, nil
}

// envelopeMessage extracts value.message from an error envelope.
func envelopeMessage(value any) string {
	switch v := value.(type) {
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	case map[string]string:
		return v["message"]
	case string:
		return v
	}
	return ""
}

// newSessionResult reads the session id and capabilities a driver returned
// from createSession.
func newSessionResult(value any) (string, any, error) {
	switch v := value.(type) {
	case NewSession:
		if v.ID != "" {
			return v.ID, v.Capabilities, nil
		}
	case *NewSession:
		if v != nil && v.ID != "" {
			return v.ID, v.Capabilities, nil
		}
	case []any:
		if len(v) == 2 {
			if id, ok := v[0].(string); ok && id != "" {
				return id, v[1], nil
			}
		}
	}
	return "", nil, Errorf(KindSessionNotCreated, "A new session could not be created. Driver returned %T instead of a session id and capabilities", value)
}

// requestSessionID returns the path's session token, or nil.
func requestSessionID(req *request) *string {
	if req.sessionID == "" {
		return nil
	}
	id := req.sessionID
	return &id
}

// classify converts err into a protocol error, logging anything that was
// not already one.
func (d *Dispatcher) classify(req *request, err error) *Error {
	pe, known := AsProtocolError(err)
	if !known {
		d.log.Error("unexpected error while handling command",
			"command", req.route.Spec.Command,
			"method", req.http.Method,
			"path", req.http.URL.Path,
			"error", err,
		)
		return pe
	}
	d.log.Debug("command failed",
		"command", req.route.Spec.Command,
		"kind", pe.Kind.Name,
		"error", pe.Error(),
	)
	return pe
}

// writeOutcome writes out and returns the HTTP status actually sent.
func (d *Dispatcher) writeOutcome(w http.ResponseWriter, out Outcome) int {
	if out.IsText() {
		w.Header().Set("Content-Type", contentTypeText)
		w.WriteHeader(out.HTTPStatus)
		if _, err := io.WriteString(w, out.Text); err != nil {
			d.log.Debug("failed to write response", "error", err)
		}
		return out.HTTPStatus
	}

	data, err := json.Marshal(out.Envelope)
	if err != nil {
		d.log.Error("failed to encode response value", "error", err)
		fallback := ResponseForError(NewUnknownError(err), out.Envelope.SessionID)
		out = fallback
		data, _ = json.Marshal(out.Envelope) //nolint:errcheck // envelope of strings always encodes
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(out.HTTPStatus)
	if _, err := w.Write(data); err != nil {
		d.log.Debug("failed to write response", "error", err)
	}
	return out.HTTPStatus
}

func (d *Dispatcher) notify(ctx context.Context, ev CommandEvent, start time.Time) {
	if d.observer == nil {
		return
	}
	ev.Duration = time.Since(start)
	d.observer.CommandDispatched(ctx, ev)
}

// proxyWriter records whether the proxy function has started a response.
type proxyWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (pw *proxyWriter) WriteHeader(code int) {
	if !pw.wroteHeader {
		pw.status = code
		pw.wroteHeader = true
	}
	pw.ResponseWriter.WriteHeader(code)
}

func (pw *proxyWriter) Write(b []byte) (int, error) {
	if !pw.wroteHeader {
		pw.WriteHeader(http.StatusOK)
	}
	return pw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (pw *proxyWriter) Unwrap() http.ResponseWriter {
	return pw.ResponseWriter
}
