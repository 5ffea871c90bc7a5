package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Sender serializes writes to a connection. gorilla/websocket permits only
// one concurrent writer per connection, and the catalog stream writes from
// both its read loop (pong, subscribed, errors) and its relay loop.
type Sender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSender wraps a connection for use by multiple writing goroutines.
func NewSender(conn *websocket.Conn) *Sender {
	return &Sender{conn: conn}
}

// Send writes a typed response payload over the WebSocket.
func (s *Sender) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

// SendError writes a typed ErrorResponse over the WebSocket.
func (s *Sender) SendError(errMsg string) error {
	return s.Send(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	return conn.ReadJSON(v)
}
