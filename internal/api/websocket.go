package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// Monitor message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Monitor channels.
const (
	// ChannelTelegram carries every telegram received or sent.
	ChannelTelegram = "telegram"

	// ChannelState carries decoded datapoint values when they change.
	ChannelState = "state"
)

// wsSendBufferSize is the per-client outbound queue. A client that falls
// this far behind loses events rather than stalling the bus.
const wsSendBufferSize = 256

var monitorChannels = map[string]struct{}{
	ChannelTelegram: {},
	ChannelState:    {},
}

var (
	errUnknownChannel = errors.New("unknown channel")
	errNoChannels     = errors.New("no channels given")
)

// WSMessage is the envelope of every monitor frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, the group addresses
// whose events are delivered. Without addresses every group is delivered.
type WSSubscribePayload struct {
	Channels  []string `json:"channels"`
	Addresses []string `json:"addresses,omitempty"`
}

// subscription is a validated WSSubscribePayload.
type subscription struct {
	channels []string
	groups   []knx.GroupAddress
}

// parseSubscription normalises channel names and parses group addresses.
// One unknown channel or bad address rejects the whole request.
func parseSubscription(channels, addresses []string) (subscription, error) {
	var sub subscription
	for _, ch := range channels {
		ch = trimLower(ch)
		if ch == "" {
			continue
		}
		if _, ok := monitorChannels[ch]; !ok {
			return subscription{}, fmt.Errorf("%w: %q", errUnknownChannel, ch)
		}
		sub.channels = append(sub.channels, ch)
	}
	for _, a := range addresses {
		if a = strings.TrimSpace(a); a == "" {
			continue
		}
		ga, err := knx.ParseGroupAddress(a)
		if err != nil {
			return subscription{}, err
		}
		sub.groups = append(sub.groups, ga)
	}
	return sub, nil
}

func (s subscription) has(channel string) bool {
	for _, ch := range s.channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// splitCSV splits a comma separated query value.
func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// Hub fans bus events out to monitor clients.
//
// Events are encoded once and queued on each interested client without
// blocking; the bridge calls BroadcastTelegram from the engine's receive
// loop.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

// NewHub creates a monitor hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("monitor client connected", "clients", n)
}

// Unregister removes a client and closes its queue.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	client.close()
	h.logger.Debug("monitor client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because a client's queue
// was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// BroadcastTelegram relays a telegram on the telegram channel. It makes
// *Hub a gateway.Broadcaster.
func (h *Hub) BroadcastTelegram(msg gateway.TelegramMessage) {
	var group *knx.GroupAddress
	if msg.TargetType == "group" {
		if ga, err := knx.ParseGroupAddress(msg.Target); err == nil {
			group = &ga
		}
	}
	h.publish(ChannelTelegram, group, msg)
}

// BroadcastState relays a datapoint value change on the state channel.
func (h *Hub) BroadcastState(msg gateway.StateMessage) {
	var group *knx.GroupAddress
	if ga, err := knx.ParseGroupAddress(msg.Address); err == nil {
		group = &ga
	}
	h.publish(ChannelState, group, msg)
}

// publish encodes one event and queues it on every client that wants it.
// group is nil for events without a group target; address filters then
// do not apply.
func (h *Hub) publish(channel string, group *knx.GroupAddress, payload any) {
	data, err := encodeEvent(channel, payload)
	if err != nil {
		h.logger.Error("encoding monitor event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.wants(channel, group) {
			continue
		}
		if !c.deliver(data) {
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func encodeEvent(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWebSocket attaches a bus monitor client.
//
// The optional query parameters subscribe before the first frame:
// channels=telegram,state and addresses=1/2/3,3/1/0. Unknown channels or
// bad addresses are rejected with 400 before the upgrade.
//
// GET /api/v1/ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sub, err := parseSubscription(splitCSV(q.Get("channels")), splitCSV(q.Get("addresses")))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, s.gateway.States)
	client.subscribe(sub)
	s.hub.Register(client)

	timing := newWSTiming(s.hub.cfg)
	go client.writePump(timing)
	go client.readPump(timing, s.hub.cfg.MaxMessageSize)

	if sub.has(ChannelState) {
		client.replayStates()
	}
}
