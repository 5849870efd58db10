package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// sendRequest is the body of POST /groups/{main}/{middle}/{sub}.
type sendRequest struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action,omitempty"`
	DPT    string `json:"dpt,omitempty"`
	Value  any    `json:"value"`
}

// groupAddressParam parses the {main}/{middle}/{sub} path parameters.
func groupAddressParam(r *http.Request) (knx.GroupAddress, error) {
	return knx.ParseGroupAddress(fmt.Sprintf("%s/%s/%s",
		chi.URLParam(r, "main"), chi.URLParam(r, "middle"), chi.URLParam(r, "sub")))
}

// handleListDatapoints returns the configured datapoints with their last
// known values.
//
// GET /api/v1/datapoints
func (s *Server) handleListDatapoints(w http.ResponseWriter, _ *http.Request) {
	type datapointView struct {
		gateway.Datapoint
		Address string                `json:"address"`
		State   *gateway.StateMessage `json:"state,omitempty"`
	}

	sorted := s.gateway.Datapoints().Sorted()
	out := make([]datapointView, 0, len(sorted))
	for _, dp := range sorted {
		view := datapointView{Datapoint: dp, Address: dp.Address.String()}
		if st, ok := s.gateway.State(dp.Address); ok {
			view.State = &st
		}
		out = append(out, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"datapoints": out,
		"count":      len(out),
	})
}

// handleGetGroup returns the last known value of a group address.
//
// GET /api/v1/groups/{main}/{middle}/{sub}
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	ga, err := groupAddressParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	state, ok := s.gateway.State(ga)
	if !ok {
		writeNotFound(w, "no value received for "+ga.String())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleSendGroup sends a write, read or answer telegram.
//
// POST /api/v1/groups/{main}/{middle}/{sub}
// Body: {"action": "write", "dpt": "1.001", "value": true}
func (s *Server) handleSendGroup(w http.ResponseWriter, r *http.Request) {
	ga, err := groupAddressParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	action, err := gateway.ParseAction(body.Action)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.send(w, r, gateway.Request{
		ID:           body.ID,
		GroupAddress: ga,
		Action:       action,
		DPT:          knx.DPT(body.DPT),
		Value:        body.Value,
		Origin:       "api",
	})
}

// handleReadGroup sends a read request. The answer arrives as a telegram
// event and updates the state returned by handleGetGroup.
//
// GET /api/v1/groups/{main}/{middle}/{sub}/read
func (s *Server) handleReadGroup(w http.ResponseWriter, r *http.Request) {
	ga, err := groupAddressParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.send(w, r, gateway.Request{
		GroupAddress: ga,
		Action:       gateway.ActionRead,
		Origin:       "api",
	})
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, req gateway.Request) {
	result, err := s.gateway.Send(r.Context(), req)
	if err != nil {
		status, code := sendErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("send failed", "error", err, "group_address", req.GroupAddress.String())
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// sendErrorStatus maps a gateway send error to an HTTP status and code.
func sendErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrInvalidAction),
		errors.Is(err, gateway.ErrMissingDPT),
		errors.Is(err, knx.ErrUnknownDPT),
		errors.Is(err, knx.ErrValueOutOfRange),
		errors.Is(err, knx.ErrInvalidPayloadLength):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, tpuart.ErrNegativeAck):
		return http.StatusBadGateway, ErrCodeBusRejected
	case errors.Is(err, tpuart.ErrReadTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeBusTimeout
	case errors.Is(err, gateway.ErrNotRunning):
		return http.StatusServiceUnavailable, ErrCodeNotRunning
	default:
		return http.StatusInternalServerError, ErrCodeGatewayError
	}
}
