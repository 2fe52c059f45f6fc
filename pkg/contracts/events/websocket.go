// Package events contains the WebSocket message contract for live filter state.
package events

import (
	"time"

	api "allocator/pkg/contracts/api/v1"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Server to client
	MessageTypeConnection  MessageType = "connection"
	MessageTypeFilterState MessageType = "filter:state"
	MessageTypeError       MessageType = "error"

	// Client to server
	MessageTypeSelectionUpdate MessageType = "selection:update"
	MessageTypeSelectionClear  MessageType = "selection:clear"
	MessageTypeHeartbeat       MessageType = "heartbeat"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// ClientMessage is what clients send. Data is decoded according to Type.
type ClientMessage struct {
	Type MessageType      `json:"type"`
	Data *SelectionUpdate `json:"data,omitempty"`
}

// SelectionUpdate sets one filter column from a client
type SelectionUpdate struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// ConnectionEvent greets a newly connected client
type ConnectionEvent struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// FilterStateEvent carries recomputed filter state after a change
type FilterStateEvent = api.FilterState
