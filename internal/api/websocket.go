package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/jsonwp-core/internal/infrastructure/config"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/logging"
	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// Message types exchanged on the event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// EventCommandDispatched carries one event per protocol command.
	EventCommandDispatched = "command.dispatched"
)

const (
	wsQueueLen = 256

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// WSMessage is the frame format in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, the sessions whose
// events a client wants. An empty Sessions list means every session.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Sessions []string `json:"sessions,omitempty"`
}

// Hub fans dispatched-command events out to WebSocket clients.
type Hub struct {
	timing wsTiming
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

var _ jsonwp.Observer = (*Hub)(nil)

type wsTiming struct {
	readLimit int64
	ping      time.Duration
	pongWait  time.Duration
	writeWait time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true }, // CORS middleware decides
}

// NewHub creates a hub. Zero config values fall back to defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	maxSize := cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultWSMaxMessageSize
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = defaultWSPingInterval
	}
	pong := cfg.PongTimeout
	if pong <= 0 {
		pong = defaultWSPongTimeout
	}

	return &Hub{
		timing: wsTiming{
			readLimit: int64(maxSize),
			ping:      time.Duration(ping) * time.Second,
			pongWait:  time.Duration(ping+pong) * time.Second,
			writeWait: time.Duration(pong) * time.Second,
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.out)
		c.conn.Close() //nolint:errcheck // shutting down
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CommandDispatched implements jsonwp.Observer.
func (h *Hub) CommandDispatched(_ context.Context, ev jsonwp.CommandEvent) {
	if h.ClientCount() == 0 {
		return
	}
	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: EventCommandDispatched,
		Timestamp: ev.Time.UTC().Format(time.RFC3339Nano),
		Payload:   ev,
	})
	if err != nil {
		h.logger.Error("encoding command event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(EventCommandDispatched, ev.SessionID) {
			c.queue(frame)
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// remove drops c and closes its queue. Queue sends happen under the read
// lock, so closing under the write lock cannot race them.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.out)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// reply queues a frame for c if it is still registered.
func (h *Hub) reply(c *wsClient, msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		c.queue(frame)
	}
}

// wsClient is one connection and its subscriptions.
type wsClient struct {
	conn *websocket.Conn
	out  chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
	sessions map[string]struct{}
}

func (c *wsClient) wants(channel, sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if len(c.sessions) == 0 {
		return true
	}
	_, ok := c.sessions[sessionID]
	return ok
}

// queue drops the frame when a slow client's buffer is full.
func (c *wsClient) queue(frame []byte) {
	select {
	case c.out <- frame:
	default:
	}
}

func (c *wsClient) apply(sub WSSubscribePayload, add bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range sub.Channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	for _, id := range sub.Sessions {
		if add {
			c.sessions[id] = struct{}{}
		} else {
			delete(c.sessions, id)
		}
	}
}

// handleWebSocket upgrades the request and starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn:     conn,
		out:      make(chan []byte, wsQueueLen),
		channels: make(map[string]struct{}),
		sessions: make(map[string]struct{}),
	}
	s.hub.add(c)

	go s.hub.write(c)
	go s.hub.read(c)
}

func (h *Hub) read(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close() //nolint:errcheck // already failing
	}()

	c.conn.SetReadLimit(h.timing.readLimit)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.timing.pongWait))
	}
	extend("") //nolint:errcheck // checked again on every read
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // checked again on every read
		h.handleFrame(c, data)
	}
}

func (h *Hub) write(c *wsClient) {
	ticker := time.NewTicker(h.timing.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // writer exiting
	}()

	for {
		var (
			kind  = websocket.PingMessage
			frame []byte
		)
		select {
		case f, ok := <-c.out:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // peer may be gone
				return
			}
			kind, frame = websocket.TextMessage, f
		case <-ticker.C:
		}

		c.conn.SetWriteDeadline(time.Now().Add(h.timing.writeWait)) //nolint:errcheck // write below reports failure
		if err := c.conn.WriteMessage(kind, frame); err != nil {
			return
		}
	}
}

func (h *Hub) handleFrame(c *wsClient, data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(c, wsError("", "invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if err := json.Unmarshal(msg.Payload, &sub); err != nil || len(sub.Channels)+len(sub.Sessions) == 0 {
			h.reply(c, wsError(msg.ID, "invalid "+msg.Type+" payload"))
			return
		}
		add := msg.Type == WSTypeSubscribe
		c.apply(sub, add)

		key := "unsubscribed"
		if add {
			key = "subscribed"
		}
		h.reply(c, WSMessage{Type: WSTypeResponse, ID: msg.ID, Payload: map[string]any{
			key:        sub.Channels,
			"sessions": sub.Sessions,
		}})
	case WSTypePing:
		h.reply(c, WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		h.reply(c, wsError(msg.ID, "unknown message type: "+msg.Type))
	}
}

func wsError(id, message string) WSMessage {
	return WSMessage{Type: WSTypeError, ID: id, Payload: map[string]string{"message": message}}
}
