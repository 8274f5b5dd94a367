package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketSubscriber delivers events as text frames on an observer socket.
type WebSocketSubscriber struct {
	id   string
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewWebSocketSubscriber wraps conn with a fresh id.
func NewWebSocketSubscriber(conn *websocket.Conn) *WebSocketSubscriber {
	return &WebSocketSubscriber{id: uuid.NewString(), conn: conn}
}

func (s *WebSocketSubscriber) ID() string { return s.id }

// Send writes one text frame. The write deadline follows ctx.
func (s *WebSocketSubscriber) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSendTimeout)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// WriteJSON sends v outside of any broadcast, e.g. the handshake key list.
func (s *WebSocketSubscriber) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(defaultSendTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// Close closes the socket once.
func (s *WebSocketSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

var _ Subscriber = (*WebSocketSubscriber)(nil)
