package api

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// fakeGateway implements Gateway.
type fakeGateway struct {
	mu         sync.Mutex
	requests   []gateway.Request
	sendErr    error
	states     map[knx.GroupAddress]gateway.StateMessage
	datapoints gateway.Datapoints
	listen     []knx.GroupAddress
	broadcast  bool
	stats      tpuart.Stats
}

func newFakeGateway() *fakeGateway {
	light := knx.MustParseGroupAddress("1/2/3")
	return &fakeGateway{
		states: make(map[knx.GroupAddress]gateway.StateMessage),
		datapoints: gateway.Datapoints{
			light: {Address: light, DPT: knx.DPTSwitch, Name: "Kitchen light"},
		},
	}
}

func (g *fakeGateway) Send(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.sendErr != nil {
		return gateway.Result{ID: req.ID}, g.sendErr
	}
	if err := ctx.Err(); err != nil {
		return gateway.Result{ID: req.ID}, err
	}
	id := req.ID
	if id == "" {
		id = "generated"
	}
	return gateway.Result{
		ID:           id,
		GroupAddress: req.GroupAddress,
		Address:      req.GroupAddress.String(),
		Action:       req.Action,
		DPT:          req.DPT,
		Raw:          "bc110a0a0be100819a",
		SentAt:       time.Now().UTC(),
	}, nil
}

func (g *fakeGateway) lastRequest() (gateway.Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return gateway.Request{}, false
	}
	return g.requests[len(g.requests)-1], true
}

func (g *fakeGateway) State(ga knx.GroupAddress) (gateway.StateMessage, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[ga]
	return st, ok
}

func (g *fakeGateway) States() []gateway.StateMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.StateMessage, 0, len(g.states))
	for _, st := range g.states {
		out = append(out, st)
	}
	return out
}

func (g *fakeGateway) Datapoints() gateway.Datapoints { return g.datapoints }

func (g *fakeGateway) ListenGroupAddresses() []knx.GroupAddress {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]knx.GroupAddress(nil), g.listen...)
}

func (g *fakeGateway) AddListenGroupAddress(ga knx.GroupAddress) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.listen) >= tpuart.MaxListenGroupAddresses {
		return tpuart.ErrListenTableFull
	}
	g.listen = append(g.listen, ga)
	return nil
}

func (g *fakeGateway) SetListenToBroadcasts(listen bool) {
	g.mu.Lock()
	g.broadcast = listen
	g.mu.Unlock()
}

func (g *fakeGateway) ListeningToBroadcasts() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.broadcast
}

func (g *fakeGateway) Stats() *gateway.EngineStatistics {
	return gateway.NewEngineStatistics(g.stats)
}

func (g *fakeGateway) Health() gateway.HealthMessage {
	return gateway.HealthMessage{
		Status:    gateway.HealthOnline,
		Timestamp: time.Now().UTC(),
		Version:   "test",
		Address:   "1.1.250",
	}
}

func (g *fakeGateway) GetMetrics() gateway.BridgeMetrics {
	return gateway.BridgeMetrics{Running: true, Datapoints: len(g.datapoints)}
}

// fakeHistory implements HistorySource.
type fakeHistory struct {
	ga     knx.GroupAddress
	since  time.Time
	points []influxdb.HistoryPoint
	err    error
}

func (h *fakeHistory) DatapointHistory(_ context.Context, ga knx.GroupAddress, since time.Time) ([]influxdb.HistoryPoint, error) {
	h.ga = ga
	h.since = since
	return h.points, h.err
}
