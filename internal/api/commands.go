package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/jsonwp-core/internal/audit"
)

// handleListCommands returns the command audit trail, newest first.
//
// Query parameters: command, session_id, failed=true, limit, offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.commandRepo == nil {
		writeUnavailable(w, "command audit trail is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Command:   q.Get("command"),
		SessionID: q.Get("session_id"),
	}

	if v := q.Get("failed"); v != "" {
		failed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "failed must be true or false")
			return
		}
		filter.FailedOnly = failed
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.commandRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing commands failed", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
