package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// wsTiming holds the keepalive intervals derived from config.
type wsTiming struct {
	ping     time.Duration
	pongWait time.Duration
}

func newWSTiming(cfg config.WebSocketConfig) wsTiming {
	t := wsTiming{
		ping:     time.Duration(cfg.PingInterval) * time.Second,
		pongWait: time.Duration(cfg.PongTimeout) * time.Second,
	}
	if t.ping <= 0 {
		t.ping = 30 * time.Second
	}
	if t.pongWait <= 0 {
		t.pongWait = 10 * time.Second
	}
	return t
}

// readDeadline is how long the connection may stay silent.
func (t wsTiming) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pongWait)
}

// WSClient is one connected bus monitor.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// states returns the current datapoint values; nil disables replay.
	states func() []gateway.StateMessage

	mu       sync.Mutex
	channels map[string]struct{}
	groups   map[knx.GroupAddress]struct{} // empty means every group
	closed   bool
}

func newWSClient(hub *Hub, conn *websocket.Conn, states func() []gateway.StateMessage) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		states:   states,
		channels: make(map[string]struct{}),
		groups:   make(map[knx.GroupAddress]struct{}),
	}
}

// wants reports whether an event on channel about group is for c.
func (c *WSClient) wants(channel string, group *knx.GroupAddress) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if len(c.groups) == 0 || group == nil {
		return true
	}
	_, ok := c.groups[*group]
	return ok
}

// deliver queues data without blocking. It returns false when the queue is
// full; a closed client silently accepts nothing.
func (c *WSClient) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close ends the queue once; writePump then sends a close frame.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// subscribe adds channels and group filters.
func (c *WSClient) subscribe(sub subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range sub.channels {
		c.channels[ch] = struct{}{}
	}
	for _, ga := range sub.groups {
		c.groups[ga] = struct{}{}
	}
}

// unsubscribe removes channels and group filters. Removing the last
// filter widens the client back to every group.
func (c *WSClient) unsubscribe(sub subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range sub.channels {
		delete(c.channels, ch)
	}
	for _, ga := range sub.groups {
		delete(c.groups, ga)
	}
}

// replayStates queues the current value of every datapoint the client
// follows, so a new monitor does not start blank.
func (c *WSClient) replayStates() {
	if c.states == nil {
		return
	}
	for _, st := range c.states() {
		var group *knx.GroupAddress
		if ga, err := knx.ParseGroupAddress(st.Address); err == nil {
			group = &ga
		}
		if !c.wants(ChannelState, group) {
			continue
		}
		data, err := encodeEvent(ChannelState, st)
		if err != nil {
			continue
		}
		c.deliver(data)
	}
}

// readPump handles client frames until the connection drops.
func (c *WSClient) readPump(t wsTiming, maxMessageSize int) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if maxMessageSize > 0 {
		c.conn.SetReadLimit(int64(maxMessageSize))
	}
	//nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetReadDeadline(t.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("monitor read failed", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		//nolint:errcheck // a failed deadline surfaces on the next read
		c.conn.SetReadDeadline(t.readDeadline())
		c.handleMessage(data)
	}
}

// writePump drains the queue to the connection and keeps it alive.
func (c *WSClient) writePump(t wsTiming) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // a failed deadline surfaces on the write
			c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
			if !ok {
				//nolint:errcheck // the connection is going away regardless
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // a failed deadline surfaces on the write
			c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client frame.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

// handleSubscription applies a subscribe or unsubscribe request. The
// request is all or nothing: one unknown channel rejects it.
func (c *WSClient) handleSubscription(msg WSMessage) {
	var req WSSubscribePayload
	raw, err := json.Marshal(msg.Payload)
	if err == nil {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "invalid " + msg.Type + " payload"})
		return
	}

	sub, err := parseSubscription(req.Channels, req.Addresses)
	if err == nil && len(sub.channels) == 0 && len(sub.groups) == 0 {
		err = errNoChannels
	}
	if err != nil {
		c.reply(msg.ID, WSTypeError, map[string]string{"message": err.Error()})
		return
	}

	addrs := make([]string, len(sub.groups))
	for i, ga := range sub.groups {
		addrs[i] = ga.String()
	}

	if msg.Type == WSTypeUnsubscribe {
		c.unsubscribe(sub)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.channels, "addresses": addrs})
		return
	}

	c.subscribe(sub)
	c.hub.logger.Debug("monitor client subscribed", "channels", sub.channels, "addresses", addrs)
	c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": sub.channels, "addresses": addrs})
	if sub.has(ChannelState) {
		c.replayStates()
	}
}

// reply queues a non-event frame to this client only.
func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.deliver(data)
}
