package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// defaultTimeout applies to locally handled upstream calls when
// Config.Timeout is zero. New sessions can take minutes to start.
const defaultTimeout = 240 * time.Second

// Config configures the upstream driver.
type Config struct {
	// URL is the upstream server's base URL, including its base path
	// (e.g. http://127.0.0.1:4444/wd/hub).
	URL string

	// BasePath is the gateway's own base path, stripped from proxied
	// request paths before they are joined onto URL.
	BasePath string

	// Timeout bounds locally handled calls (createSession, deleteSession,
	// getStatus). Proxied requests follow the client's request context.
	Timeout time.Duration

	// ProxyAvoid lists requests answered locally instead of proxied.
	ProxyAvoid []jsonwp.AvoidRule

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Driver is the root backend. It owns the session registry and hands out
// per-session drivers to the dispatcher.
//
// Thread Safety: All methods are safe for concurrent use.
type Driver struct {
	client   *client
	basePath string
	avoid    []jsonwp.AvoidRule
	logger   jsonwp.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an upstream driver. No connection is made until the first
// command.
func New(cfg Config, logger jsonwp.Logger) (*Driver, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}
	for _, rule := range cfg.ProxyAvoid {
		if err := jsonwp.ValidateAvoidRule(rule); err != nil {
			return nil, err
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = nopLogger{}
	}

	return &Driver{
		client: &client{
			base: base,
			http: &http.Client{Timeout: timeout, Transport: transport},
		},
		basePath: cfg.BasePath,
		avoid:    append([]jsonwp.AvoidRule(nil), cfg.ProxyAvoid...),
		logger:   logger,
		sessions: make(map[string]*Session),
	}, nil
}

// URL returns the upstream base URL.
func (d *Driver) URL() string {
	return d.client.base.String()
}

// SessionExists reports whether id names a live session.
func (d *Driver) SessionExists(id string) bool {
	if id == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sessions[id]
	return ok
}

// DriverForSession returns the per-session driver for id, or nil.
func (d *Driver) DriverForSession(id string) jsonwp.Driver {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.sessions[id]; ok {
		return s
	}
	return nil
}

// SessionCount returns the number of live sessions.
func (d *Driver) SessionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// ExecuteCommand runs the session-less commands. Session commands reach
// the per-session driver instead.
func (d *Driver) ExecuteCommand(ctx context.Context, command string, args ...any) (any, error) {
	switch command {
	case jsonwp.CommandCreateSession:
		return d.createSession(ctx, args)
	case jsonwp.CommandGetStatus:
		return d.status(ctx)
	case jsonwp.CommandGetSessions:
		return d.listSessions(), nil
	case jsonwp.CommandDeleteSession:
		id, _ := lastString(args) //nolint:errcheck // empty id fails the lookup
		return nil, d.deleteSession(ctx, id)
	default:
		return nil, jsonwp.Errorf(jsonwp.KindNotYetImplemented,
			"Command '%s' is not implemented by the gateway", command)
	}
}

// createSession expects desiredCapabilities, requiredCapabilities and
// capabilities, in that order.
func (d *Driver) createSession(ctx context.Context, args []any) (any, error) {
	body := map[string]any{}
	for i, key := range []string{"desiredCapabilities", "requiredCapabilities", "capabilities"} {
		if i < len(args) && args[i] != nil {
			body[key] = args[i]
		}
	}

	resp, err := d.client.do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return nil, err
	}
	id, caps, err := resp.session()
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:           id,
		Capabilities: caps,
		CreatedAt:    time.Now().UTC(),
		parent:       d,
	}
	d.mu.Lock()
	d.sessions[id] = s
	d.mu.Unlock()

	d.logger.Info("session created", "session_id", id, "upstream", d.URL())
	return jsonwp.NewSession{ID: id, Capabilities: caps}, nil
}

// deleteSession ends the upstream session. The local entry is removed even
// when the upstream call fails; the failure is only logged, so a dead
// upstream cannot pin sessions.
func (d *Driver) deleteSession(ctx context.Context, id string) error {
	d.mu.Lock()
	_, ok := d.sessions[id]
	delete(d.sessions, id)
	d.mu.Unlock()
	if !ok {
		return jsonwp.NewError(jsonwp.KindNoSuchDriver)
	}

	if _, err := d.client.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(id), nil); err != nil {
		d.logger.Warn("upstream session delete failed", "session_id", id, "error", err)
		return nil
	}
	d.logger.Info("session deleted", "session_id", id)
	return nil
}

func (d *Driver) status(ctx context.Context) (any, error) {
	resp, err := d.client.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	return resp.decodeValue()
}

// Ping checks that the upstream server answers /status.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.status(ctx)
	return err
}

// listSessions returns the live sessions, oldest first.
func (d *Driver) listSessions() []map[string]any {
	d.mu.RLock()
	list := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		list = append(list, s)
	}
	d.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	out := make([]map[string]any, 0, len(list))
	for _, s := range list {
		out = append(out, map[string]any{"id": s.ID, "capabilities": s.Capabilities})
	}
	return out
}

// Shutdown deletes every live session upstream. Failures are logged.
func (d *Driver) Shutdown(ctx context.Context) {
	d.mu.RLock()
	ids := make([]string, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	for _, id := range ids {
		if err := d.deleteSession(ctx, id); err != nil {
			d.logger.Warn("session cleanup failed", "session_id", id, "error", err)
		}
	}
}

// lastString returns the final argument as a string. Path captures come
// last and sessionId is always the final one.
func lastString(args []any) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	s, ok := args[len(args)-1].(string)
	return s, ok
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
