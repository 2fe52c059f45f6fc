package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"allocator/internal/infrastructure"
	"allocator/pkg/contracts/events"
)

// broadcastBuffer is the depth of the hub's inbound queues
const broadcastBuffer = 256

type envelope struct {
	sessionID string
	msgType   events.MessageType
	data      []byte
}

type direct struct {
	client  *Client
	msgType events.MessageType
	data    []byte
}

// Hub tracks live clients per session and fans messages out to them.
// Only the Run goroutine touches client send channels.
type Hub struct {
	sessions map[string]map[*Client]struct{}

	register     chan *Client
	unregister   chan *Client
	broadcast    chan envelope
	direct       chan direct
	closeSession chan string
	done         chan struct{}

	// count mirrors the number of registered clients for readers outside Run
	mu    sync.RWMutex
	count int

	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// NewHub creates a hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *infrastructure.BusinessMetrics) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		sessions:     make(map[string]map[*Client]struct{}),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan envelope, broadcastBuffer),
		direct:       make(chan direct, broadcastBuffer),
		closeSession: make(chan string, broadcastBuffer),
		done:         make(chan struct{}),
		metrics:      metrics,
		logger:       logger.With(slog.String("component", "websocket.hub")),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	h.logger.InfoContext(ctx, "hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return nil

		case c := <-h.register:
			h.add(ctx, c)

		case c := <-h.unregister:
			h.remove(ctx, c, "disconnected")

		case id := <-h.closeSession:
			for c := range h.sessions[id] {
				h.remove(ctx, c, "session_closed")
			}

		case m := <-h.direct:
			if _, ok := h.sessions[m.client.sessionID][m.client]; ok {
				h.deliver(ctx, m.client, m.msgType, m.data)
			}

		case env := <-h.broadcast:
			clients := h.sessions[env.sessionID]
			for c := range clients {
				h.deliver(ctx, c, env.msgType, env.data)
			}
			h.logger.DebugContext(ctx, "broadcast delivered",
				slog.String("session_id", env.sessionID),
				slog.String("type", string(env.msgType)),
				slog.Int("clients", len(clients)),
				slog.Int("payload_size", len(env.data)))
		}
	}
}

// Register adds c to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c from the hub and closes its send channel
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastToSession sends one message to every client of a session
func (h *Hub) BroadcastToSession(sessionID string, msgType events.MessageType, data interface{}) {
	payload, err := encode(msgType, "", data)
	if err != nil {
		h.logger.Error("failed to encode broadcast",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- envelope{sessionID: sessionID, msgType: msgType, data: payload}:
	case <-h.done:
	}
}

// SendTo sends one message to a single client
func (h *Hub) SendTo(c *Client, msgType events.MessageType, data interface{}) {
	payload, err := encode(msgType, c.traceID, data)
	if err != nil {
		c.logger.Error("failed to encode message",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()))
		return
	}
	select {
	case h.direct <- direct{client: c, msgType: msgType, data: payload}:
	case <-h.done:
	}
}

// CloseSession disconnects every client of a session
func (h *Hub) CloseSession(sessionID string) {
	select {
	case h.closeSession <- sessionID:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) add(ctx context.Context, c *Client) {
	clients, ok := h.sessions[c.sessionID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[c.sessionID] = clients
	}
	clients[c] = struct{}{}
	h.setCount(1)
	infrastructure.RecordWebSocketConnection(ctx, h.metrics, 1)

	h.logger.InfoContext(ctx, "client registered",
		slog.String("client_id", c.id),
		slog.String("session_id", c.sessionID),
		slog.String("remote_addr", c.remoteAddr),
		slog.Int("session_clients", len(clients)))

	payload, err := encode(events.MessageTypeConnection, c.traceID, events.ConnectionEvent{
		ClientID:  c.id,
		SessionID: c.sessionID,
		Status:    "connected",
	})
	if err == nil {
		h.deliver(ctx, c, events.MessageTypeConnection, payload)
	}
}

func (h *Hub) remove(ctx context.Context, c *Client, reason string) {
	clients, ok := h.sessions[c.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.sessions, c.sessionID)
	}
	close(c.send)
	h.setCount(-1)
	infrastructure.RecordWebSocketConnection(ctx, h.metrics, -1)

	h.logger.InfoContext(ctx, "client unregistered",
		slog.String("client_id", c.id),
		slog.String("session_id", c.sessionID),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(c.connectedAt)))
}

// deliver queues data for c, dropping the client if its buffer is full
func (h *Hub) deliver(ctx context.Context, c *Client, msgType events.MessageType, data []byte) {
	select {
	case c.send <- data:
		infrastructure.RecordWebSocketMessage(ctx, h.metrics, "out", string(msgType))
	default:
		h.logger.WarnContext(ctx, "client send buffer full, disconnecting",
			slog.String("client_id", c.id))
		h.remove(ctx, c, "slow_consumer")
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	n := 0
	for _, clients := range h.sessions {
		for c := range clients {
			close(c.send)
			n++
		}
	}
	h.sessions = make(map[string]map[*Client]struct{})
	h.mu.Lock()
	h.count = 0
	h.mu.Unlock()
	infrastructure.RecordWebSocketConnection(ctx, h.metrics, -int64(n))
	h.logger.Info("hub stopped", slog.Int("clients_closed", n))
}

func (h *Hub) setCount(delta int) {
	h.mu.Lock()
	h.count += delta
	h.mu.Unlock()
}

func encode(msgType events.MessageType, traceID string, data interface{}) ([]byte, error) {
	return json.Marshal(events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        uuid.New().String(),
			Type:      msgType,
			Timestamp: time.Now().UTC(),
			TraceID:   traceID,
		},
		Data: data,
	})
}
