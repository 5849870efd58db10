package api

import (
	"net/http"
	"time"
)

const (
	defaultHistoryRange = time.Hour
	maxHistoryRange     = 30 * 24 * time.Hour
)

// handleGroupHistory returns the recorded values of a group address.
//
// GET /api/v1/groups/{main}/{middle}/{sub}/history?since=6h
func (s *Server) handleGroupHistory(w http.ResponseWriter, r *http.Request) {
	ga, err := groupAddressParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if s.history == nil {
		writeUnavailable(w, "time series storage is disabled")
		return
	}

	window := defaultHistoryRange
	if raw := trimLower(r.URL.Query().Get("since")); raw != "" {
		window, err = time.ParseDuration(raw)
		if err != nil || window <= 0 {
			writeBadRequest(w, "since must be a positive duration such as 30m or 6h")
			return
		}
		window = min(window, maxHistoryRange)
	}

	since := time.Now().Add(-window)
	points, err := s.history.DatapointHistory(r.Context(), ga, since)
	if err != nil {
		s.logger.Error("history query failed", "error", err, "group_address", ga.String())
		writeInternalError(w, "history query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": ga.String(),
		"since":   since.UTC().Format(time.RFC3339),
		"points":  points,
		"count":   len(points),
	})
}
