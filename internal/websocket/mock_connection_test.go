package websocket

import (
	"errors"
	"sync"
	"time"
)

var errConnClosed = errors.New("connection closed")

// MockConnection is an in-memory Connection. Reads block until a message is
// queued with AddReadMessage or the connection is closed.
type MockConnection struct {
	mu       sync.Mutex
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	written     [][]byte
	controls    []int
	readLimit   int64
	pongHandler func(string) error
}

func NewMockConnection() *MockConnection {
	return &MockConnection{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	select {
	case <-m.closed:
		return errConnClosed
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if messageType == 1 {
		m.written = append(m.written, append([]byte(nil), data...))
	} else {
		m.controls = append(m.controls, messageType)
	}
	return nil
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.incoming:
		return 1, data, nil
	case <-m.closed:
		return 0, nil, errConnClosed
	}
}

func (m *MockConnection) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *MockConnection) SetReadDeadline(time.Time) error  { return nil }
func (m *MockConnection) SetWriteDeadline(time.Time) error { return nil }

func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	m.readLimit = limit
	m.mu.Unlock()
}

func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	m.pongHandler = h
	m.mu.Unlock()
}

// AddReadMessage queues a text frame for ReadMessage
func (m *MockConnection) AddReadMessage(data string) {
	m.incoming <- []byte(data)
}

// Written returns the text frames written so far
func (m *MockConnection) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// IsClosed reports whether Close has been called
func (m *MockConnection) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}
