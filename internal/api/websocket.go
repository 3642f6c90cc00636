package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/config"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/logging"
	"github.com/tv2/tv-automation-server-core-sub000/internal/playout"
)

// Message types on the WebSocket.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// Channels a client can subscribe to. They are the events the engine
// broadcasts; anything else is refused.
const (
	ChannelTimelineGenerated = playout.EventTimelineGenerated
	ChannelTimelineFailed    = playout.EventTimelineFailed
	ChannelTake              = playout.EventTake
)

var channels = map[string]struct{}{
	ChannelTimelineGenerated: {},
	ChannelTimelineFailed:    {},
	ChannelTake:              {},
}

// splitChannels separates known channels from unknown ones, trimming blanks.
func splitChannels(names []string) (known, unknown []string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := channels[name]; ok {
			known = append(known, name)
		} else {
			unknown = append(unknown, name)
		}
	}
	return known, unknown
}

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

func envelope(msgType, id, eventType string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// Hub fans engine events out to the WebSocket clients subscribed to them.
// It satisfies playout.WSHub.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected operator UI.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
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

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that actually removed it closes
// the send channel.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an engine event to the clients subscribed to channel.
// A client with a full buffer misses the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := envelope(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "channel", channel, "error", err)
		return
	}

	sent := 0
	for _, c := range h.subscribers(channel) {
		c.trySend(data)
		sent++
	}
	if sent > 0 {
		h.logger.Debug("event sent", "channel", channel, "recipients", sent)
	}
}

// subscribers snapshots the clients on channel without holding the hub
// lock while their own locks are taken.
func (h *Hub) subscribers(channel string) []*WSClient {
	h.mu.RLock()
	all := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	out := all[:0]
	for _, c := range all {
		if c.isSubscribed(channel) {
			out = append(out, c)
		}
	}
	return out
}

// handleWebSocket upgrades the request. ?channels=a,b subscribes up front;
// unknown names in the query are ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	known, unknown := splitChannels(strings.Split(r.URL.Query().Get("channels"), ","))
	for _, ch := range known {
		c.subscriptions[ch] = struct{}{}
	}
	if len(unknown) > 0 {
		s.logger.Debug("ignoring unknown websocket channels", "channels", unknown)
	}

	s.hub.Register(c)

	t := timingsFrom(s.wsCfg)
	go c.writePump(t)
	go c.readPump(t, int64(s.wsCfg.MaxMessageSize))
}

// wsTimings holds the keepalive intervals from the websocket config.
type wsTimings struct {
	ping time.Duration
	pong time.Duration
}

func timingsFrom(cfg config.WebSocketConfig) wsTimings {
	return wsTimings{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		pong: time.Duration(cfg.PongTimeout) * time.Second,
	}
}

func (t wsTimings) readDeadline() time.Time { return time.Now().Add(t.ping + t.pong) }

func (c *WSClient) readPump(t wsTimings, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // best effort
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings still keep the socket open
		// by sending application frames.
		c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // best effort
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.pong)) //nolint:errcheck // write error is checked
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func decodeChannels(msg WSMessage) ([]string, bool) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, false
	}
	var p WSSubscribePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return p.Channels, true
}

// subscribe adds the known channels of the request. Unknown channels are
// listed back as rejected; a request with no known channel is an error.
func (c *WSClient) subscribe(msg WSMessage) {
	names, ok := decodeChannels(msg)
	if !ok {
		c.sendError(msg.ID, "invalid subscribe payload")
		return
	}
	known, unknown := splitChannels(names)
	if len(known) == 0 {
		c.sendError(msg.ID, "no known channel in "+strings.Join(names, ","))
		return
	}

	c.mu.Lock()
	for _, ch := range known {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", known)
	resp := map[string]any{"subscribed": known}
	if len(unknown) > 0 {
		resp["rejected"] = unknown
	}
	c.reply(msg.ID, WSTypeResponse, resp)
}

func (c *WSClient) unsubscribe(msg WSMessage) {
	names, ok := decodeChannels(msg)
	if !ok {
		c.sendError(msg.ID, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range names {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": names})
}

// trySend queues data for the write pump. The send channel may already be
// closed by Unregister or Run; a full buffer drops the frame.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := envelope(msgType, id, "", payload)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
