package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Broadcast channels a client can subscribe to.
const (
	// ChannelObservationChanged carries every observation whose value or
	// availability changed.
	ChannelObservationChanged = "observation.changed"

	// ChannelAlarmTriggered carries alarm pulses switching on.
	ChannelAlarmTriggered = "alarm.triggered"
)

// wsQueueSize is how many outbound messages a slow client may lag behind
// before further broadcasts to it are dropped.
const wsQueueSize = 64

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels of a subscribe or unsubscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound WSMessage with the payload left undecoded until
// the type is known.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type observationEvent struct {
	Serial      string                  `json:"serial"`
	Observation observation.Observation `json:"observation"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware already restricts origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans observation changes out to connected WebSocket clients.
//
// Hub implements observation.Listener. Clients receive nothing until they
// subscribe to at least one channel.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu    sync.RWMutex
	conns map[*wsConn]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[*wsConn]struct{}),
	}
}

// Run waits for ctx to end and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*wsConn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.shutdown()
	}
}

// ObservationChanged implements observation.Listener.
func (h *Hub) ObservationChanged(serial string, obs observation.Observation) {
	event := observationEvent{Serial: serial, Observation: obs}
	h.publish(ChannelObservationChanged, event)

	if on, _ := obs.Value.(bool); on {
		if _, isAlarm := observation.AlarmCategoryByKey(obs.Key); isAlarm {
			h.publish(ChannelAlarmTriggered, event)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

func (h *Hub) remove(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// publish encodes an event once and queues it for every subscriber of channel.
func (h *Hub) publish(channel string, payload any) {
	data, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		if c.subscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// handleWebSocket upgrades the request to a WebSocket. When authentication
// is enabled the client must present a ticket from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	subject := "anonymous"
	if s.secCfg.JWT.Secret != "" {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		entry, ok := s.tickets.consume(ticket)
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
		subject = entry.subject
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		hub:      s.hub,
		ws:       ws,
		subject:  subject,
		timing:   newWSTiming(s.wsCfg),
		queue:    make(chan []byte, wsQueueSize),
		done:     make(chan struct{}),
		channels: make(map[string]bool),
	}
	s.hub.add(c)

	go c.writeLoop()
	go c.readLoop(int64(s.wsCfg.MaxMessageSize))
}

// wsTiming holds the keepalive durations derived from configuration.
type wsTiming struct {
	ping     time.Duration // interval between server pings
	readIdle time.Duration // longest silence tolerated from the client
	write    time.Duration // deadline of a single write
}

func newWSTiming(cfg config.WebSocketConfig) wsTiming {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return wsTiming{ping: ping, readIdle: ping + pong, write: pong}
}

// wsConn is one connected client. The queue is never closed; done signals
// the writer to stop, so a late broadcast can never panic.
type wsConn struct {
	hub     *Hub
	ws      *websocket.Conn
	subject string
	timing  wsTiming

	queue    chan []byte
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	channels map[string]bool
}

func (c *wsConn) shutdown() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// enqueue queues a frame, dropping it when the client is gone or too slow.
func (c *wsConn) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.queue <- data:
	default:
	}
}

func (c *wsConn) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *wsConn) setChannels(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if on {
			c.channels[ch] = true
		} else {
			delete(c.channels, ch)
		}
	}
}

func (c *wsConn) extendReadDeadline() error {
	return c.ws.SetReadDeadline(time.Now().Add(c.timing.readIdle))
}

func (c *wsConn) readLoop(limit int64) {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(limit)
	c.extendReadDeadline() //nolint:errcheck // A failed deadline surfaces as a read error
	c.ws.SetPongHandler(func(string) error { return c.extendReadDeadline() })

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		c.extendReadDeadline() //nolint:errcheck // See above
		c.handle(data)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.timing.ping)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case <-c.done:
			//nolint:errcheck // Best-effort close frame
			c.ws.SetWriteDeadline(time.Now().Add(c.timing.write))
			//nolint:errcheck // Best-effort close frame
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data = <-c.queue:
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		c.ws.SetWriteDeadline(time.Now().Add(c.timing.write)) //nolint:errcheck // Write reports it
		if err := c.ws.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

// handle answers one client request.
func (c *wsConn) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(WSTypeError, "", errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(WSTypePong, req.ID, nil)

	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.reply(WSTypeError, req.ID, errorPayload("invalid "+req.Type+" payload"))
			return
		}
		on := req.Type == WSTypeSubscribe
		c.setChannels(sub.Channels, on)

		result := "unsubscribed"
		if on {
			result = "subscribed"
		}
		c.hub.logger.Debug("websocket "+result, "subject", c.subject, "channels", sub.Channels)
		c.reply(WSTypeResponse, req.ID, map[string][]string{result: sub.Channels})

	default:
		c.reply(WSTypeError, req.ID, errorPayload("unknown message type: "+req.Type))
	}
}

func (c *wsConn) reply(msgType, id string, payload any) {
	data, err := encodeFrame(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

// encodeFrame stamps msg with the current time and marshals it.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}
