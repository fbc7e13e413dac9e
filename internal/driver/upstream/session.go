package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// Session is a live upstream session. It is the jsonwp.Driver and
// jsonwp.Proxier the dispatcher uses for that session's commands.
type Session struct {
	ID           string
	Capabilities any
	CreatedAt    time.Time

	parent *Driver
}

// SessionExists defers to the registry so a deleted session stops
// answering immediately.
func (s *Session) SessionExists(id string) bool {
	return s.parent.SessionExists(id)
}

// ExecuteCommand handles the commands that are not proxied: deleteSession
// and anything matching an avoid rule.
func (s *Session) ExecuteCommand(ctx context.Context, command string, args ...any) (any, error) {
	if command == jsonwp.CommandDeleteSession {
		return nil, s.parent.deleteSession(ctx, s.ID)
	}
	return nil, jsonwp.Errorf(jsonwp.KindNotYetImplemented,
		"Command '%s' is not proxied and has no local implementation", command)
}

// ProxyActive is always true while the session exists.
func (s *Session) ProxyActive(id string) bool {
	return s.parent.SessionExists(id)
}

// ProxyAvoidList returns the configured avoid rules.
func (s *Session) ProxyAvoidList(string) []jsonwp.AvoidRule {
	return s.parent.avoid
}

// ProxyReqRes forwards r to the upstream server and streams the reply to w.
// The gateway base path is replaced by the upstream base path.
func (s *Session) ProxyReqRes(w http.ResponseWriter, r *http.Request) error {
	var proxyErr error
	base := s.parent.client.base

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = jsonwp.NormalizePath(pr.In.URL.Path, s.parent.basePath)
			pr.Out.URL.RawPath = ""
			pr.SetURL(base)
			pr.SetXForwarded()
		},
		Transport: s.parent.client.http.Transport,
		ErrorHandler: func(_ http.ResponseWriter, _ *http.Request, err error) {
			proxyErr = err
		},
	}
	rp.ServeHTTP(w, r)

	if proxyErr != nil {
		if errors.Is(proxyErr, context.Canceled) {
			return fmt.Errorf("proxying %s %s: client went away: %w", r.Method, r.URL.Path, proxyErr)
		}
		return fmt.Errorf("proxying %s %s: %w", r.Method, r.URL.Path, proxyErr)
	}
	return nil
}
