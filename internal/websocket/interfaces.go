package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	api "allocator/pkg/contracts/api/v1"
)

// Connection is the part of a WebSocket connection the pumps use.
// *websocket.Conn satisfies it; tests substitute a fake.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
}

var _ Connection = (*websocket.Conn)(nil)

// SessionActions is what live clients may do to their session
type SessionActions interface {
	GetSession(ctx context.Context, id string) (api.SessionSummary, error)
	Filters(ctx context.Context, id string) (api.FilterState, error)
	SetSelection(ctx context.Context, id, column string, values []string) (api.FilterState, error)
	ClearSelections(ctx context.Context, id string) (api.FilterState, error)
}
