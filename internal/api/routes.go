package api

import (
	"net/http"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// RouteInfo describes one served protocol route.
type RouteInfo struct {
	Method  string                `json:"method"`
	Path    string                `json:"path"`
	Command string                `json:"command,omitempty"`
	Params  *jsonwp.PayloadParams `json:"params,omitempty"`
}

// RouteTableInfo is the body of GET /api/v1/routes.
type RouteTableInfo struct {
	BasePath string      `json:"base_path"`
	Digest   string      `json:"digest"`
	Count    int         `json:"count"`
	Routes   []RouteInfo `json:"routes"`
}

// handleListRoutes returns the protocol route table and its digest, so
// clients can check they speak the same protocol shape.
func (s *Server) handleListRoutes(w http.ResponseWriter, _ *http.Request) {
	table := s.dispatcher.Routes()

	info := RouteTableInfo{
		BasePath: s.dispatcher.BasePath(),
		Digest:   table.Digest(),
		Count:    len(table),
		Routes:   make([]RouteInfo, 0, len(table)),
	}
	for _, route := range table {
		info.Routes = append(info.Routes, RouteInfo{
			Method:  route.Method,
			Path:    route.Path,
			Command: route.Spec.Command,
			Params:  route.Spec.Params,
		})
	}

	writeJSON(w, http.StatusOK, info)
}
