package api

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// parseLimit parses the limit query parameter.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// handleListGroupAddresses returns group addresses seen on the bus,
// most recently active first.
//
// GET /api/v1/addresses/groups?limit=100
func (s *Server) handleListGroupAddresses(w http.ResponseWriter, r *http.Request) {
	if s.addresses == nil {
		writeUnavailable(w, "address recording is disabled")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	records, err := s.addresses.GroupAddresses(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list group addresses", "error", err)
		writeInternalError(w, "failed to list group addresses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_addresses": records,
		"count":           len(records),
	})
}

// handleListDevices returns individual addresses seen as telegram sources.
//
// GET /api/v1/addresses/devices?limit=100
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.addresses == nil {
		writeUnavailable(w, "address recording is disabled")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	records, err := s.addresses.Devices(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": records,
		"count":   len(records),
	})
}

// handleListSent returns the sent telegram log.
//
// GET /api/v1/sent?limit=100
func (s *Server) handleListSent(w http.ResponseWriter, r *http.Request) {
	if s.addresses == nil {
		writeUnavailable(w, "address recording is disabled")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	records, err := s.addresses.SentTelegrams(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list sent telegrams", "error", err)
		writeInternalError(w, "failed to list sent telegrams")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sent":  records,
		"count": len(records),
	})
}
