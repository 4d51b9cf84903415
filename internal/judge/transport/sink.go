package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"codejudge/internal/judge/model"
)

var errSinkClosed = errors.New("result channel is closed")

// wsSink delivers result messages over one websocket connection. Writes are
// serialized; once the connection fails or closes every send is dropped.
type wsSink struct {
	conn      *websocket.Conn
	writeWait time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

func newWSSink(conn *websocket.Conn, writeWait time.Duration) *wsSink {
	return &wsSink{conn: conn, writeWait: writeWait}
}

// Send writes msg as one JSON text frame.
func (s *wsSink) Send(_ context.Context, msg model.Message) error {
	if s.closed.Load() {
		return errSinkClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errSinkClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.closed.Store(true)
		return err
	}
	return nil
}

// Open reports whether the connection is still usable.
func (s *wsSink) Open() bool {
	return !s.closed.Load()
}

func (s *wsSink) ping() error {
	if s.closed.Load() {
		return errSinkClosed
	}
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
		s.closed.Store(true)
		return err
	}
	return nil
}

func (s *wsSink) markClosed() {
	s.closed.Store(true)
}
