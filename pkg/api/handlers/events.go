package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/memory"
)

const (
	defaultMaxStreams   = 100
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultSendBuffer   = 32
)

// Control message types exchanged with stream clients.
const (
	msgConnected    = "connected"
	msgSubscribe    = "subscribe"
	msgSubscribed   = "subscribed"
	msgUnsubscribe  = "unsubscribe"
	msgUnsubscribed = "unsubscribed"
)

// EventsConfig configures the event stream.
type EventsConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// EventMessage is the wire format of a stream message.
type EventMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

type incomingMessage struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

type streamClient struct {
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
	closeOnce     sync.Once
}

func newStreamClient(conn *websocket.Conn) *streamClient {
	return &streamClient{
		conn:          conn,
		send:          make(chan []byte, defaultSendBuffer),
		subscriptions: make(map[string]struct{}),
	}
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *streamClient) subscribe(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[eventType] = struct{}{}
}

func (c *streamClient) unsubscribe(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, eventType)
}

// wants reports whether the client receives eventType. A client with no
// subscriptions receives everything.
func (c *streamClient) wants(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[eventType]
	return ok
}

// streamManager tracks connected clients.
type streamManager struct {
	mu             sync.RWMutex
	clients        map[*streamClient]struct{}
	maxConnections int
}

func newStreamManager(maxConnections int) *streamManager {
	return &streamManager{
		clients:        make(map[*streamClient]struct{}),
		maxConnections: maxConnections,
	}
}

func (m *streamManager) register(client *streamClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.maxConnections {
		return errors.New("event stream connection limit reached")
	}
	m.clients[client] = struct{}{}
	return nil
}

func (m *streamManager) unregister(client *streamClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	client.close()
}

func (m *streamManager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *streamManager) canAccept() bool {
	return m.count() < m.maxConnections
}

// broadcast queues payload for every client that wants eventType. Clients
// whose buffer is full are dropped.
func (m *streamManager) broadcast(eventType string, payload []byte) {
	m.mu.RLock()
	clients := make([]*streamClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	for _, client := range clients {
		if !client.wants(eventType) {
			continue
		}
		m.enqueue(client, payload)
	}
}

func (m *streamManager) enqueue(client *streamClient, payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.clients[client]; !ok {
		return
	}
	select {
	case client.send <- payload:
	default:
		go m.unregister(client)
	}
}

func (m *streamManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		client.close()
		delete(m.clients, client)
	}
}

// EventsHandler streams hub events to websocket clients on
// /api/v1/events. It is a memory.Observer.
type EventsHandler struct {
	log          logger.Logger
	manager      *streamManager
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

// NewEventsHandler creates an event stream handler.
func NewEventsHandler(log logger.Logger, cfg EventsConfig) *EventsHandler {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxStreams
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}

	h := &EventsHandler{
		log:          log,
		manager:      newStreamManager(cfg.MaxConnections),
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	allowedOrigins := append([]string(nil), cfg.AllowedOrigins...)
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
	}
	return h
}

// ServeHTTP handles GET /api/v1/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !h.manager.canAccept() {
		http.Error(w, "event stream connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WarnContext(r.Context(), "event stream upgrade failed", "error", err)
		return
	}

	client := newStreamClient(conn)
	if err := h.manager.register(client); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many event streams"),
			time.Now().Add(h.writeTimeout),
		)
		_ = conn.Close()
		return
	}

	h.reply(client, msgConnected, nil)
	go h.writePump(client)
	h.readPump(client)
}

func (h *EventsHandler) readPump(client *streamClient) {
	defer h.manager.unregister(client)

	readDeadline := h.pingInterval + h.pongTimeout
	client.conn.SetReadLimit(4 << 10)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("event stream read error", "error", err)
			}
			return
		}
		h.handleIncoming(client, data)
	}
}

// writePump owns all writes to the connection and closes it when the
// send channel is closed.
func (h *EventsHandler) writePump(client *streamClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.manager.unregister(client)
		_ = client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeTimeout),
				)
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) handleIncoming(client *streamClient, raw []byte) {
	var msg incomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	eventType := strings.TrimSpace(msg.Event)
	if eventType == "" {
		return
	}

	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case msgSubscribe:
		client.subscribe(eventType)
		h.reply(client, msgSubscribed, map[string]string{"event": eventType})
	case msgUnsubscribe:
		client.unsubscribe(eventType)
		h.reply(client, msgUnsubscribed, map[string]string{"event": eventType})
	}
}

// reply sends a control message to one client regardless of its
// subscriptions.
func (h *EventsHandler) reply(client *streamClient, msgType string, payload any) {
	raw, err := json.Marshal(EventMessage{Type: msgType, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		return
	}
	h.manager.enqueue(client, raw)
}

// Broadcast sends an event to every client subscribed to its type.
func (h *EventsHandler) Broadcast(event EventMessage) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.manager.broadcast(event.Type, raw)
	return nil
}

// OnHubEvent forwards hub events to the stream.
func (h *EventsHandler) OnHubEvent(e memory.Event) {
	if err := h.Broadcast(EventMessage{Type: e.Type, Timestamp: e.Time, Payload: e.Payload}); err != nil {
		h.log.Warn("hub event not streamed", "type", e.Type, "error", err)
	}
}

// Connections returns the number of open streams.
func (h *EventsHandler) Connections() int {
	return h.manager.count()
}

// Close ends every open stream.
func (h *EventsHandler) Close() {
	h.manager.closeAll()
}

func originAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
