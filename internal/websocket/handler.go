package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"allocator/internal/config"
	apperrors "allocator/internal/errors"
	"allocator/pkg/contracts/events"
)

// Handler upgrades /ws?session={id} requests and attaches the client to the hub
type Handler struct {
	hub            *Hub
	actions        SessionActions
	upgrader       websocket.Upgrader
	clientConfig   ClientConfig
	allowedOrigins []string
	development    bool
	errorHandler   *apperrors.ErrorHandler
	logger         *slog.Logger
}

// NewHandler creates the upgrade handler
func NewHandler(
	hub *Hub,
	actions SessionActions,
	cfg config.WebSocketConfig,
	allowedOrigins []string,
	development bool,
	errorHandler *apperrors.ErrorHandler,
	logger *slog.Logger,
) *Handler {
	h := &Handler{
		hub:            hub,
		actions:        actions,
		clientConfig:   ClientConfigFrom(cfg),
		allowedOrigins: allowedOrigins,
		development:    development,
		errorHandler:   errorHandler,
		logger:         logger.With(slog.String("component", "websocket.handler")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows same-origin requests, any origin in development and the configured list otherwise
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.development {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.WarnContext(r.Context(), "websocket origin not allowed",
		slog.String("origin", origin),
		slog.Any("allowed_origins", h.allowedOrigins))
	return false
}

// ServeHTTP handles GET /ws?session={id}
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		h.errorHandler.HandleError(w, r, apperrors.ErrValidation("session", "session is required"))
		return
	}

	summary, err := h.actions.GetSession(ctx, sessionID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("origin", r.Header.Get("Origin")))
		return
	}

	client := NewClient(h.hub, conn, sessionID, h.actions, ClientOptions{
		Config:     h.clientConfig,
		RemoteAddr: r.RemoteAddr,
		TraceID:    middleware.GetReqID(ctx),
		Logger:     h.logger,
	})
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	if summary.File != nil {
		if state, err := h.actions.Filters(ctx, sessionID); err == nil {
			h.hub.SendTo(client, events.MessageTypeFilterState, state)
		}
	}

	h.logger.InfoContext(ctx, "websocket client connected",
		slog.String("client_id", client.ID()),
		slog.String("session_id", sessionID),
		slog.String("remote_addr", r.RemoteAddr))

	// The request context ends when ServeHTTP returns
	pumpCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(pumpCtx, "write pump panic", slog.Any("panic", rec))
			}
		}()
		client.WritePump()
	}()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(pumpCtx, "read pump panic", slog.Any("panic", rec))
			}
		}()
		client.ReadPump(pumpCtx)
	}()
}
