package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"allocator/internal/config"
	apperrors "allocator/internal/errors"
	"allocator/internal/infrastructure"
	"allocator/pkg/contracts/events"
)

// ClientConfig holds the connection timings and limits
type ClientConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// ClientConfigFrom adapts the WebSocket section of the application config
func ClientConfigFrom(cfg config.WebSocketConfig) ClientConfig {
	out := DefaultClientConfig()
	if cfg.WriteWait > 0 {
		out.WriteWait = cfg.WriteWait
	}
	if cfg.PongWait > 0 {
		out.PongWait = cfg.PongWait
	}
	if cfg.PingPeriod > 0 && cfg.PingPeriod < out.PongWait {
		out.PingPeriod = cfg.PingPeriod
	} else {
		out.PingPeriod = (out.PongWait * 9) / 10
	}
	if cfg.MaxMessageSize > 0 {
		out.MaxMessageSize = cfg.MaxMessageSize
	}
	return out
}

// DefaultClientConfig returns the stock timings. PingPeriod must stay below PongWait.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 << 10,
		SendBuffer:     64,
	}
}

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is a middleman between one WebSocket connection and the hub
type Client struct {
	hub     *Hub
	conn    Connection
	actions SessionActions
	send    chan []byte
	cfg     ClientConfig

	id          string
	sessionID   string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger

	messagesSent     int64
	messagesReceived int64
}

// ClientOptions are the optional attributes of a client
type ClientOptions struct {
	Config     ClientConfig
	RemoteAddr string
	TraceID    string
	Logger     *slog.Logger
}

// NewClient creates a client bound to one session
func NewClient(hub *Hub, conn Connection, sessionID string, actions SessionActions, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	cfg := opts.Config
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultClientConfig().SendBuffer
	}

	id := uuid.New().String()
	logger = logger.With(
		slog.String("component", "websocket.client"),
		slog.String("client_id", id),
		slog.String("session_id", sessionID),
	)
	if opts.TraceID != "" {
		logger = logger.With(slog.String("trace_id", opts.TraceID))
	}

	return &Client{
		hub:         hub,
		conn:        conn,
		actions:     actions,
		send:        make(chan []byte, cfg.SendBuffer),
		cfg:         cfg,
		id:          id,
		sessionID:   sessionID,
		traceID:     opts.TraceID,
		remoteAddr:  opts.RemoteAddr,
		connectedAt: time.Now(),
		logger:      logger,
	}
}

// ID returns the client identifier
func (c *Client) ID() string { return c.id }

// ReadPump applies client commands until the connection fails
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.logger.InfoContext(ctx, "client disconnected (read pump)",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived))
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.WarnContext(ctx, "unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.messagesReceived++

		var msg events.ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError(apperrors.NewInvalidParameterError("message is not valid JSON"))
			continue
		}
		infrastructure.RecordWebSocketMessage(ctx, c.hub.metrics, "in", string(msg.Type))
		c.handle(ctx, msg)
	}
}

// handle applies one client command. Successful changes reach every client
// of the session through the service's broadcast.
func (c *Client) handle(ctx context.Context, msg events.ClientMessage) {
	var err error
	switch msg.Type {
	case events.MessageTypeHeartbeat:
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.logger.DebugContext(ctx, "heartbeat received")
		return

	case events.MessageTypeSelectionUpdate:
		if msg.Data == nil || msg.Data.Column == "" {
			err = apperrors.NewInvalidParameterError("selection:update requires data.column")
			break
		}
		_, err = c.actions.SetSelection(ctx, c.sessionID, msg.Data.Column, msg.Data.Values)

	case events.MessageTypeSelectionClear:
		_, err = c.actions.ClearSelections(ctx, c.sessionID)

	default:
		err = apperrors.NewInvalidParameterError("unknown message type %q", msg.Type)
	}

	if err != nil {
		c.logger.WarnContext(ctx, "client command failed",
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()))
		c.sendError(err)
	}
}

func (c *Client) sendError(err error) {
	c.hub.SendTo(c, events.MessageTypeError, apperrors.Problem(err, "/ws?session="+c.sessionID))
}

// WritePump writes queued messages and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Info("write pump stopped", slog.Int64("messages_sent", c.messagesSent))
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("error writing message", slog.String("error", err.Error()))
				return
			}
			c.messagesSent++

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", slog.String("error", err.Error()))
				return
			}
		}
	}
}
