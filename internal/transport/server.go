// Package transport serves the realtime websocket protocol. Each connection
// is a session that can subscribe to rooms; grabs are broadcast to every
// subscriber of the coin's room.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/coinhunt/roomengine/internal/cache"
	"github.com/coinhunt/roomengine/internal/dispatcher"
	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/coinhunt/roomengine/pkg/streaming"
)

// ErrUnknownSession is returned when sending to a session that has gone away.
var ErrUnknownSession = errors.New("unknown session")

// Dispatcher routes decoded client events.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Config holds websocket server settings.
type Config struct {
	// SendBuffer is the per-session outgoing queue length. Messages beyond it are dropped.
	SendBuffer int
	// CheckOrigin overrides the upgrader's origin check; nil allows all origins.
	CheckOrigin func(r *http.Request) bool
}

// Server accepts websocket sessions at its ServeHTTP handler.
type Server struct {
	cfg        Config
	upgrader   ws.Upgrader
	dispatcher Dispatcher
	subs       *cache.Subscriptions
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewServer builds a Server. subs must be the registry the event handlers maintain.
func NewServer(cfg Config, d Dispatcher, subs *cache.Subscriptions, logger *slog.Logger) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		upgrader:   ws.Upgrader{CheckOrigin: checkOrigin},
		dispatcher: d,
		subs:       subs,
		logger:     logger.With("component", "transport"),
		sessions:   make(map[string]*session),
	}
}

// SetDispatcher replaces the event dispatcher. Call before serving.
func (s *Server) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// ServeHTTP upgrades the request and serves the session until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	sess := newSession(uuid.NewString(), conn, s.cfg.SendBuffer, s.logger)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.logger.Debug("session opened", "session", sess.id, "remote", r.RemoteAddr)

	go sess.writeLoop()
	s.readLoop(sess)
	s.drop(sess)
}

func (s *Server) readLoop(sess *session) {
	sess.conn.SetReadLimit(maxMessage)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				sess.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			sess.logger.Debug("malformed message", "raw", string(message))
			s.reply(sess, streaming.TypeError, streaming.ErrorPayload{Message: "malformed message"})
			continue
		}

		_, err = s.dispatcher.Dispatch(dispatcher.Event{
			Type:      env.Type,
			Session:   sess.id,
			Args:      env.Args,
			Timestamp: time.Now(),
		})
		if err != nil {
			s.reply(sess, streaming.TypeError, streaming.ErrorPayload{For: env.Type, Message: err.Error()})
		}
	}
}

// drop forgets a disconnected session and its room subscriptions.
func (s *Server) drop(sess *session) {
	sess.close()
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	rooms := s.subs.LeaveAll(sess.id)
	s.logger.Debug("session closed", "session", sess.id, "rooms", rooms)
}

func (s *Server) session(id string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *Server) reply(sess *session, msgType string, args ...any) {
	data, err := streaming.Marshal(msgType, args...)
	if err != nil {
		sess.logger.Error("failed to encode reply", "type", msgType, "error", err)
		return
	}
	sess.send(data)
}

// Send queues a message for one session.
func (s *Server) Send(sessionID, msgType string, args ...any) error {
	sess := s.session(sessionID)
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	data, err := streaming.Marshal(msgType, args...)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	sess.send(data)
	return nil
}

// Broadcast queues a message for every session subscribed to room and
// returns how many sessions accepted it.
func (s *Server) Broadcast(room, msgType string, args ...any) (int, error) {
	data, err := streaming.Marshal(msgType, args...)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", msgType, err)
	}
	n := 0
	for _, id := range s.subs.Members(room) {
		if sess := s.session(id); sess != nil && sess.send(data) {
			n++
		}
	}
	return n, nil
}

// NotifyGrab broadcasts a committed grab as coinGrabbed to the coin's room.
func (s *Server) NotifyGrab(_ context.Context, ev core.GrabEvent) {
	if _, err := s.Broadcast(ev.Coin.Room, streaming.TypeCoinGrabbed, ev.Coin); err != nil {
		s.logger.Error("failed to broadcast grab", "room", ev.Coin.Room, "coinId", ev.Coin.ID, "error", err)
	}
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close disconnects every session.
func (s *Server) Close() error {
	s.mu.RLock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()
	for _, sess := range open {
		sess.close()
	}
	return nil
}
