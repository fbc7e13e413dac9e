package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// apiPrefix is where the admin endpoints live.
const apiPrefix = "/api/v1"

// defaultWSPath is used when the websocket path is not configured.
const defaultWSPath = apiPrefix + "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}

	r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/routes", s.handleListRoutes)
		r.Get("/commands", s.handleListCommands)

		if sub, ok := strings.CutPrefix(wsPath, apiPrefix); ok && strings.HasPrefix(sub, "/") {
			r.Get(sub, s.handleWebSocket)
		}
	})
	if !strings.HasPrefix(wsPath, apiPrefix+"/") {
		r.Get(wsPath, s.handleWebSocket)
	}

	// Protocol routes
	s.dispatcher.Install(r)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	return r
}

// handleNotFound answers unmatched protocol paths in the protocol's own
// format and everything else with the admin error shape.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher.Owns(r.URL.Path) && !strings.HasPrefix(r.URL.Path, apiPrefix+"/") {
		s.dispatcher.NotFoundHandler()(w, r)
		return
	}
	writeNotFound(w, "no route for "+r.Method+" "+r.URL.Path)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
