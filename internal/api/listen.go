package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// listenResponse describes which telegrams the transceiver acknowledges.
type listenResponse struct {
	GroupAddresses []string `json:"group_addresses"`
	Capacity       int      `json:"capacity"`
	Broadcast      bool     `json:"broadcast"`
}

// handleGetListen returns the listen table.
//
// GET /api/v1/listen
func (s *Server) handleGetListen(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.listenState())
}

// handleAddListen adds a group address to the listen table.
//
// POST /api/v1/listen
// Body: {"group_address": "1/2/3"}
func (s *Server) handleAddListen(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GroupAddress string `json:"group_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ga, err := knx.ParseGroupAddress(body.GroupAddress)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.gateway.AddListenGroupAddress(ga); err != nil {
		if errors.Is(err, tpuart.ErrListenTableFull) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "listen table is full")
			return
		}
		s.logger.Error("failed to add listen group address", "error", err, "group_address", ga.String())
		writeInternalError(w, "failed to add listen group address")
		return
	}

	writeJSON(w, http.StatusOK, s.listenState())
}

// handleSetBroadcast toggles broadcast reception (programming mode).
//
// PUT /api/v1/listen/broadcast
// Body: {"enabled": true}
func (s *Server) handleSetBroadcast(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	s.gateway.SetListenToBroadcasts(*body.Enabled)
	writeJSON(w, http.StatusOK, s.listenState())
}

func (s *Server) listenState() listenResponse {
	groups := s.gateway.ListenGroupAddresses()
	out := make([]string, 0, len(groups))
	for _, ga := range groups {
		out = append(out, ga.String())
	}
	return listenResponse{
		GroupAddresses: out,
		Capacity:       tpuart.MaxListenGroupAddresses,
		Broadcast:      s.gateway.ListeningToBroadcasts(),
	}
}
