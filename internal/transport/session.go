package transport

import (
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/coinhunt/roomengine/internal/channel"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	maxMessage = 1 << 16
)

// session is one accepted websocket connection with a single write goroutine.
type session struct {
	id     string
	conn   *ws.Conn
	sendCh channel.Channel[[]byte]
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newSession(id string, conn *ws.Conn, buffer int, logger *slog.Logger) *session {
	return &session{
		id:     id,
		conn:   conn,
		sendCh: channel.New[[]byte](buffer),
		done:   make(chan struct{}),
		logger: logger.With("session", id),
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (s *session) send(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	if !s.sendCh.TrySend(data) {
		s.logger.Warn("WebSocket send channel full, dropping message", "queued", s.sendCh.Len())
		return false
	}
	return true
}

// writeLoop drains sendCh and pings the peer. It returns on error or close.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.sendCh.Receive():
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				return
			}
			if err := s.conn.WriteMessage(ws.TextMessage, data); err != nil {
				s.logger.Warn("WebSocket write error", "error", err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug("WebSocket ping failed", "error", err)
				return
			}
		}
	}
}

// close sends a close frame once and releases the connection.
func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = s.conn.Close()
	})
}
