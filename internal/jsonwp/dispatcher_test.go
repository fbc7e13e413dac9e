package jsonwp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// ─── Test Fixtures ──────────────────────────────────────────────────

func testRoutes() RouteTable {
	return RouteTable{
		{Method: http.MethodGet, Path: "/status", Spec: CommandSpec{Command: CommandGetStatus}},
		{Method: http.MethodPost, Path: "/session", Spec: CommandSpec{
			Command: CommandCreateSession,
			Params:  &PayloadParams{Required: RequiredSets{{"desiredCapabilities"}}, Optional: []string{"requiredCapabilities"}},
		}},
		{Method: http.MethodDelete, Path: "/session/:sessionId", Spec: CommandSpec{Command: CommandDeleteSession}},
		{Method: http.MethodPost, Path: "/session/:sessionId/url", Spec: CommandSpec{
			Command: "setUrl",
			Params:  &PayloadParams{Required: RequiredSets{{"url"}}},
		}},
		{Method: http.MethodGet, Path: "/session/:sessionId/url", Spec: CommandSpec{Command: "getUrl"}},
		{Method: http.MethodPost, Path: "/session/:sessionId/back", Spec: CommandSpec{Command: "back"}},
		{Method: http.MethodPost, Path: "/session/:sessionId/refresh", Spec: CommandSpec{Command: "refresh"}},
		{Method: http.MethodPost, Path: "/session/:sessionId/element/:elementId/click", Spec: CommandSpec{Command: "click"}},
		{Method: http.MethodPost, Path: "/session/:sessionId/element", Spec: CommandSpec{
			Command: "findElement",
			Params:  &PayloadParams{Required: RequiredSets{{"using", "value"}}},
		}},
		{Method: http.MethodGet, Path: "/session/:sessionId/title", Spec: CommandSpec{Command: "title"}},
		{Method: http.MethodGet, Path: "/session/:sessionId/source", Spec: CommandSpec{Command: "getPageSource"}},
		{Method: http.MethodGet, Path: "/session/:sessionId/window_handle", Spec: CommandSpec{Command: "getWindowHandle"}},
		{Method: http.MethodPost, Path: "/session/:sessionId/timeouts/implicit_wait", Spec: CommandSpec{
			Command: "implicitWait",
			Params:  &PayloadParams{Required: RequiredSets{{"ms"}}},
		}},
		{Method: http.MethodPost, Path: "/session/:sessionId/touch/perform", Spec: CommandSpec{
			Command: "performTouch",
			Params:  &PayloadParams{Wrap: "actions", Required: RequiredSets{{"actions"}}},
		}},
		{Method: http.MethodGet, Path: "/session/:sessionId/local_storage", Spec: CommandSpec{}},
	}
}

type call struct {
	command string
	args    []any
}

// fakeDriver echoes its inputs in the shapes the tests assert on.
type fakeDriver struct {
	mu       sync.Mutex
	sessions map[string]bool
	calls    []call
}

func newFakeDriver(sessions ...string) *fakeDriver {
	f := &fakeDriver{sessions: make(map[string]bool)}
	for _, s := range sessions {
		f.sessions[s] = true
	}
	return f
}

func (f *fakeDriver) SessionExists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeDriver) ExecuteCommand(_ context.Context, command string, args ...any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{command: command, args: args})
	f.mu.Unlock()

	switch command {
	case CommandGetStatus:
		return map[string]any{"build": map[string]any{"version": "test"}}, nil
	case CommandCreateSession:
		return []any{"new-session", args[0]}, nil
	case CommandDeleteSession:
		return "ignored", nil
	case "setUrl":
		return "Navigated to: " + args[0].(string), nil //nolint:forcetypeassert // validated upstream
	case "getUrl", "refresh":
		return "http://foobar.com", nil
	case "back":
		return args[0], nil
	case "click":
		return []any{args[0], args[1]}, nil
	case "findElement":
		return nil, NewError(KindNoSuchElement)
	case "title":
		return nil, errors.New("kaboom")
	case "getPageSource":
		return Envelope{Status: 7, Value: map[string]any{"message": "element vanished"}}, nil
	case "getWindowHandle":
		return nil, nil
	case "performTouch", "implicitWait", "clickCurrent":
		return args, nil
	}
	return nil, NewError(KindNotYetImplemented)
}

func (f *fakeDriver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDriver) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

// proxyingDriver forwards everything it is allowed to.
type proxyingDriver struct {
	*fakeDriver
	avoid   []AvoidRule
	fail    error
	proxied int
}

func (p *proxyingDriver) ProxyActive(string) bool { return true }

func (p *proxyingDriver) ProxyAvoidList(string) []AvoidRule { return p.avoid }

func (p *proxyingDriver) ProxyReqRes(w http.ResponseWriter, _ *http.Request) error {
	p.proxied++
	if p.fail != nil {
		return p.fail
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	_, err := io.WriteString(w, `{"status":0,"value":"from upstream","sessionId":"s1"}`)
	return err
}

// routingDriver hands every session to a per-session driver.
type routingDriver struct {
	*fakeDriver
	session Driver
}

func (r *routingDriver) DriverForSession(string) Driver { return r.session }

type recordingObserver struct {
	mu     sync.Mutex
	events []CommandEvent
}

func (o *recordingObserver) CommandDispatched(_ context.Context, ev CommandEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func newTestHandler(t *testing.T, drv Driver, obs Observer) http.Handler {
	t.Helper()

	d, err := NewDispatcher(Options{
		Driver:     drv,
		Routes:     testRoutes(),
		Validators: NewValidatorRegistry(DefaultValidators()),
		Observer:   obs,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}

	r := chi.NewRouter()
	d.Install(r)
	r.NotFound(d.NotFoundHandler())
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want application/json (body %q)", ct, rec.Body.String())
	}
	var env map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %q)", err, rec.Body.String())
	}
	for _, key := range []string{"status", "value", "sessionId"} {
		if _, ok := env[key]; !ok {
			t.Errorf("envelope missing %q: %v", key, env)
		}
	}
	return env
}

// ─── Success Paths ──────────────────────────────────────────────────

func TestDispatch_SetURL(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodPost, "/wd/hub/session/foo/url", `{"url":"http://google.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	want := map[string]any{"status": 0.0, "value": "Navigated to: http://google.com", "sessionId": "foo"}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("envelope = %v, want %v", env, want)
	}
}

func TestDispatch_ArgumentOrder(t *testing.T) {
	drv := newFakeDriver("foo")
	h := newTestHandler(t, drv, nil)

	do(h, http.MethodPost, "/wd/hub/session/foo/url", `{"url":"http://x"}`)
	if got := drv.lastCall().args; !reflect.DeepEqual(got, []any{"http://x", "foo"}) {
		t.Errorf("setUrl args = %#v, want [http://x foo]", got)
	}

	rec := do(h, http.MethodPost, "/wd/hub/session/foo/element/bar/click", "")
	if got := drv.lastCall().args; !reflect.DeepEqual(got, []any{"bar", "foo"}) {
		t.Errorf("click args = %#v, want [bar foo]", got)
	}
	env := decodeEnvelope(t, rec)
	if !reflect.DeepEqual(env["value"], []any{"bar", "foo"}) {
		t.Errorf("click value = %v", env["value"])
	}
}

func TestDispatch_GetStatusNeedsNoSession(t *testing.T) {
	h := newTestHandler(t, newFakeDriver(), nil)

	rec := do(h, http.MethodGet, "/wd/hub/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["sessionId"] != nil {
		t.Errorf("sessionId = %v, want null", env["sessionId"])
	}
}

func TestDispatch_CreateSession(t *testing.T) {
	h := newTestHandler(t, newFakeDriver(), nil)

	rec := do(h, http.MethodPost, "/wd/hub/session", `{"desiredCapabilities":{"platformName":"Fake"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env["sessionId"] != "new-session" {
		t.Errorf("sessionId = %v, want new-session", env["sessionId"])
	}
	if !reflect.DeepEqual(env["value"], map[string]any{"platformName": "Fake"}) {
		t.Errorf("value = %v, want capabilities echo", env["value"])
	}
}

func TestDispatch_DeleteSessionValueIsNull(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodDelete, "/wd/hub/session/foo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["value"] != nil {
		t.Errorf("value = %v, want null", env["value"])
	}
	if env["sessionId"] != "foo" {
		t.Errorf("sessionId = %v, want foo", env["sessionId"])
	}
}

func TestDispatch_NilResultIsNull(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodGet, "/wd/hub/session/foo/window_handle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"value":null`) {
		t.Errorf("body = %q, want value null", rec.Body.String())
	}
}

func TestDispatch_WrapParams(t *testing.T) {
	drv := newFakeDriver("foo")
	h := newTestHandler(t, drv, nil)

	rec := do(h, http.MethodPost, "/wd/hub/session/foo/touch/perform", `[{"action":"tap"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	want := []any{[]any{map[string]any{"action": "tap"}}, "foo"}
	if got := drv.lastCall().args; !reflect.DeepEqual(got, want) {
		t.Errorf("performTouch args = %#v, want %#v", got, want)
	}
}

// ─── Client Errors ──────────────────────────────────────────────────

func TestDispatch_MissingRequiredParam(t *testing.T) {
	drv := newFakeDriver("foo")
	h := newTestHandler(t, drv, nil)

	rec := do(h, http.MethodPost, "/wd/hub/session/foo/url", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "url") {
		t.Errorf("body = %q, want it to name the url field", rec.Body.String())
	}
	if drv.callCount() != 0 {
		t.Error("driver was invoked despite invalid parameters")
	}
}

func TestDispatch_InvalidJSON(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodPost, "/wd/hub/session/foo/url", `{"url":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDispatch_SemanticValidation(t *testing.T) {
	drv := newFakeDriver("foo")
	h := newTestHandler(t, drv, nil)

	rec := do(h, http.MethodPost, "/wd/hub/session/foo/url", `{"url":"ftp://nope"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Url must start with http") {
		t.Errorf("setUrl: status = %d body = %q", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodPost, "/wd/hub/session/foo/timeouts/implicit_wait", `{"ms":-1}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "ms") {
		t.Errorf("implicitWait: status = %d body = %q", rec.Code, rec.Body.String())
	}

	if drv.callCount() != 0 {
		t.Error("driver was invoked despite failed validation")
	}
}

func TestDispatch_NotImplementedRoute(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodGet, "/wd/hub/session/foo/local_storage", "")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "implemented") {
		t.Errorf("body = %q, want it to mention implemented", rec.Body.String())
	}
}

func TestDispatch_DriverNotYetImplemented(t *testing.T) {
	routes := append(testRoutes(), Route{Method: http.MethodGet, Path: "/session/:sessionId/orientation", Spec: CommandSpec{Command: "getOrientation"}})
	d, err := NewDispatcher(Options{Driver: newFakeDriver("foo"), Routes: routes})
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}
	r := chi.NewRouter()
	d.Install(r)

	rec := do(r, http.MethodGet, "/wd/hub/session/foo/orientation", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestDispatch_OptionalButtonOmitted(t *testing.T) {
	routes := append(testRoutes(), Route{Method: http.MethodPost, Path: "/session/:sessionId/click", Spec: CommandSpec{
		Command: "clickCurrent",
		Params:  &PayloadParams{Optional: []string{"button"}},
	}})
	drv := newFakeDriver("foo")
	d, err := NewDispatcher(Options{Driver: drv, Routes: routes, Validators: NewValidatorRegistry(DefaultValidators())})
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}
	r := chi.NewRouter()
	d.Install(r)

	rec := do(r, http.MethodPost, "/wd/hub/session/foo/click", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q, want 200", rec.Code, rec.Body.String())
	}
	got := drv.lastCall()
	if got.command != "clickCurrent" || len(got.args) != 2 || got.args[0] != nil || got.args[1] != "foo" {
		t.Errorf("call = %+v, want clickCurrent(nil, foo)", got)
	}

	rec = do(r, http.MethodPost, "/wd/hub/session/foo/click", `{"button":4}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad button status = %d, want 400", rec.Code)
	}
}

// ─── Protocol Errors ────────────────────────────────────────────────

func TestDispatch_UnknownSession(t *testing.T) {
	drv := newFakeDriver("foo")
	h := newTestHandler(t, drv, nil)

	rec := do(h, http.MethodPost, "/wd/hub/session/nope/url", `{"url":"http://google.com"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["status"] != 6.0 {
		t.Errorf("protocol status = %v, want 6", env["status"])
	}
	if env["sessionId"] != "nope" {
		t.Errorf("sessionId = %v, want nope", env["sessionId"])
	}
	if drv.callCount() != 0 {
		t.Error("driver was invoked for a missing session")
	}
}

func TestDispatch_DriverProtocolError(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodPost, "/wd/hub/session/foo/element", `{"using":"id","value":"missing"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["status"] != 7.0 {
		t.Errorf("protocol status = %v, want 7", env["status"])
	}
}

func TestDispatch_DriverUnknownError(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodGet, "/wd/hub/session/foo/title", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["status"] != 13.0 {
		t.Errorf("protocol status = %v, want 13", env["status"])
	}
	value, _ := env["value"].(map[string]any)
	msg, _ := value["message"].(string)
	if !strings.Contains(msg, "Original error: kaboom") {
		t.Errorf("message = %q, want original error appended", msg)
	}
}

func TestDispatch_UpstreamEnvelopeError(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodGet, "/wd/hub/session/foo/source", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["status"] != 7.0 {
		t.Errorf("protocol status = %v, want 7", env["status"])
	}
	if !strings.Contains(rec.Body.String(), "element vanished") {
		t.Errorf("body = %q, want upstream message", rec.Body.String())
	}
}

func TestDispatch_UnknownRoute(t *testing.T) {
	h := newTestHandler(t, newFakeDriver("foo"), nil)

	rec := do(h, http.MethodGet, "/wd/hub/session/foo/does_not_exist", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["status"] != 9.0 {
		t.Errorf("protocol status = %v, want 9", env["status"])
	}
}

// ─── Proxying ───────────────────────────────────────────────────────

func TestDispatch_ProxyAvoidList(t *testing.T) {
	session := &proxyingDriver{
		fakeDriver: newFakeDriver("s1"),
		avoid:      []AvoidRule{{Method: http.MethodPost, Pattern: regexp.MustCompile(`^/session/[^/]+/refresh$`)}},
	}
	root := &routingDriver{fakeDriver: newFakeDriver(), session: session}
	h := newTestHandler(t, root, nil)

	rec := do(h, http.MethodPost, "/wd/hub/session/s1/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rec.Code)
	}
	if session.proxied != 0 {
		t.Error("POST refresh matched an avoid rule but was proxied")
	}
	if session.lastCall().command != "refresh" {
		t.Errorf("refresh was not handled locally, last call %q", session.lastCall().command)
	}

	rec = do(h, http.MethodGet, "/wd/hub/session/s1/url", "")
	if session.proxied != 1 {
		t.Error("GET url should have been proxied")
	}
	if !strings.Contains(rec.Body.String(), "from upstream") {
		t.Errorf("body = %q, want upstream response", rec.Body.String())
	}
}

func TestDispatch_ProxySkipsValidation(t *testing.T) {
	session := &proxyingDriver{fakeDriver: newFakeDriver()}
	root := &routingDriver{fakeDriver: newFakeDriver(), session: session}
	h := newTestHandler(t, root, nil)

	// Body would fail validation and the session is unknown locally.
	rec := do(h, http.MethodPost, "/wd/hub/session/s1/url", `{}`)
	if rec.Code != http.StatusOK || session.proxied != 1 {
		t.Errorf("status = %d proxied = %d, want proxied untouched", rec.Code, session.proxied)
	}
}

func TestDispatch_ProxyDeleteSessionHandledLocally(t *testing.T) {
	session := &proxyingDriver{fakeDriver: newFakeDriver("s1")}
	root := &routingDriver{fakeDriver: newFakeDriver(), session: session}
	h := newTestHandler(t, root, nil)

	rec := do(h, http.MethodDelete, "/wd/hub/session/s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if session.proxied != 0 {
		t.Error("deleteSession must never be proxied")
	}
}

func TestDispatch_ProxyActiveForSessionlessCommands(t *testing.T) {
	root := &proxyingDriver{fakeDriver: newFakeDriver()}
	h := newTestHandler(t, root, nil)

	rec := do(h, http.MethodGet, "/wd/hub/status", "")
	if rec.Code != http.StatusOK || root.proxied != 1 {
		t.Fatalf("status = %d proxied = %d, want getStatus proxied", rec.Code, root.proxied)
	}
	if root.callCount() != 0 {
		t.Error("proxied getStatus also ran locally")
	}
	if !strings.Contains(rec.Body.String(), "from upstream") {
		t.Errorf("body = %q, want upstream response", rec.Body.String())
	}
}

func TestDispatch_ProxyFailure(t *testing.T) {
	session := &proxyingDriver{fakeDriver: newFakeDriver("s1"), fail: errors.New("connection refused")}
	root := &routingDriver{fakeDriver: newFakeDriver(), session: session}
	h := newTestHandler(t, root, nil)

	rec := do(h, http.MethodGet, "/wd/hub/session/s1/url", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["status"] != 13.0 {
		t.Errorf("protocol status = %v, want 13", env["status"])
	}
	if !strings.Contains(rec.Body.String(), "Could not proxy") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestDispatch_ProxyMalformedRule(t *testing.T) {
	session := &proxyingDriver{
		fakeDriver: newFakeDriver("s1"),
		avoid:      []AvoidRule{{Method: "PUT", Pattern: regexp.MustCompile(".*")}},
	}
	root := &routingDriver{fakeDriver: newFakeDriver(), session: session}
	logs := &errorLog{}
	d, err := NewDispatcher(Options{Driver: root, Routes: testRoutes(), Logger: logs})
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}
	r := chi.NewRouter()
	d.Install(r)

	rec := do(r, http.MethodGet, "/wd/hub/session/s1/url", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if session.proxied != 0 || session.callCount() != 0 {
		t.Error("malformed avoid rule should stop the request")
	}
	if msgs := logs.messages(); len(msgs) == 0 || !strings.Contains(msgs[0], "configuration") {
		t.Errorf("error logs = %v, want a configuration error", msgs)
	}
}

// errorLog records Error-level messages.
type errorLog struct {
	mu   sync.Mutex
	errs []string
}

func (l *errorLog) Debug(string, ...any) {}
func (l *errorLog) Info(string, ...any)  {}
func (l *errorLog) Warn(string, ...any)  {}
func (l *errorLog) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func (l *errorLog) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errs...)
}

// ─── Observer ───────────────────────────────────────────────────────

func TestDispatch_ObserverReceivesEvents(t *testing.T) {
	obs := &recordingObserver{}
	h := newTestHandler(t, newFakeDriver("foo"), obs)

	do(h, http.MethodPost, "/wd/hub/session/foo/url", `{"url":"http://google.com"}`)
	do(h, http.MethodPost, "/wd/hub/session/bar/url", `{"url":"http://google.com"}`)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.events) != 2 {
		t.Fatalf("got %d events, want 2", len(obs.events))
	}

	ok := obs.events[0]
	if ok.Command != "setUrl" || ok.HTTPStatus != http.StatusOK || ok.SessionID != "foo" || ok.Error != "" {
		t.Errorf("success event = %+v", ok)
	}
	failed := obs.events[1]
	if failed.HTTPStatus != http.StatusInternalServerError || failed.ProtocolStatus != 6 || failed.Error == "" {
		t.Errorf("failure event = %+v", failed)
	}
}

// ─── Construction ───────────────────────────────────────────────────

func TestNewDispatcher_Errors(t *testing.T) {
	if _, err := NewDispatcher(Options{Routes: testRoutes()}); !errors.Is(err, ErrMissingDriver) {
		t.Errorf("missing driver error = %v", err)
	}

	dup := append(testRoutes(), Route{Method: http.MethodGet, Path: "/other", Spec: CommandSpec{Command: "getUrl"}})
	if _, err := NewDispatcher(Options{Driver: newFakeDriver(), Routes: dup}); !errors.Is(err, ErrInvalidRouteTable) {
		t.Errorf("duplicate command error = %v", err)
	}

	bad := RouteTable{{Method: "PUT", Path: "/x", Spec: CommandSpec{Command: "x"}}}
	if _, err := NewDispatcher(Options{Driver: newFakeDriver(), Routes: bad}); !errors.Is(err, ErrInvalidRouteTable) {
		t.Errorf("bad method error = %v", err)
	}
}

func TestNewDispatcher_BasePath(t *testing.T) {
	d, err := NewDispatcher(Options{Driver: newFakeDriver(), Routes: testRoutes(), BasePath: "/custom/"})
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}
	if d.BasePath() != "/custom" {
		t.Errorf("BasePath() = %q", d.BasePath())
	}
	if !d.Owns("/custom/status") || d.Owns("/wd/hub/status") {
		t.Error("Owns() does not follow the base path")
	}

	r := chi.NewRouter()
	d.Install(r)
	if rec := do(r, http.MethodGet, "/custom/status", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /custom/status = %d", rec.Code)
	}
}
