package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"golang.org/x/exp/slices"

	"github.com/coinhunt/roomengine/internal/channel"
	"github.com/coinhunt/roomengine/pkg/streaming"
)

const (
	clientSendSize = 1024
	eventChSize    = 256
	maxReconnect   = 10
	maxBackoff     = 30 * time.Second
)

// Client is a websocket client for the realtime protocol with a single write
// goroutine. After a reconnect it rejoins the rooms it had joined.
type Client struct {
	mu     sync.Mutex
	conn   *ws.Conn
	stop   chan struct{} // closed when conn is abandoned
	sendCh channel.Channel[[]byte]
	events chan streaming.Envelope
	done   chan struct{}
	closed bool

	url   string
	rooms []string

	logger *slog.Logger
}

// NewClient creates an unconnected client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		sendCh: channel.New[[]byte](clientSendSize),
		events: make(chan streaming.Envelope, eventChSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Dial connects to the websocket endpoint and starts read/write loops.
func (c *Client) Dial(rawURL string) error {
	c.url = rawURL

	conn, _, err := ws.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.start(conn)
	return nil
}

// start adopts conn and runs one read/write loop pair for it.
func (c *Client) start(conn *ws.Conn) {
	stop := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn, stop)
}

// Events delivers every server message. Messages are dropped when the
// consumer falls behind.
func (c *Client) Events() <-chan streaming.Envelope {
	return c.events
}

// Send queues an event. Non-blocking; drops if channel full.
func (c *Client) Send(msgType string, args ...any) error {
	data, err := streaming.Marshal(msgType, args...)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	if !c.sendCh.TrySend(data) {
		c.logger.Warn("WebSocket send channel full, dropping message", "type", msgType)
	}
	return nil
}

// Join subscribes to room and remembers it for reconnects.
func (c *Client) Join(room string) error {
	c.mu.Lock()
	if !slices.Contains(c.rooms, room) {
		c.rooms = append(c.rooms, room)
	}
	c.mu.Unlock()
	return c.Send(streaming.TypeJoinRoom, room)
}

// Leave unsubscribes from room.
func (c *Client) Leave(room string) error {
	c.mu.Lock()
	if i := slices.Index(c.rooms, room); i >= 0 {
		c.rooms = slices.Delete(c.rooms, i, i+1)
	}
	c.mu.Unlock()
	return c.Send(streaming.TypeLeaveRoom, room)
}

func (c *Client) writeLoop(conn *ws.Conn, stop chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh.Receive():
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *ws.Conn, stop chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-stop:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Non-envelope message received", "raw", string(message))
			continue
		}

		select {
		case c.events <- env:
		default:
			c.logger.Debug("Event channel full, dropping", "type", env.Type)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff and
// rejoins the remembered rooms. Both loops of a failed conn may call it;
// only the first one for that conn proceeds.
func (c *Client) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	close(c.stop)
	_ = c.conn.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt)
		conn, _, err := ws.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		rooms := slices.Clone(c.rooms)
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt, "rooms", len(rooms))
		c.start(conn)
		for _, room := range rooms {
			_ = c.Send(streaming.TypeJoinRoom, room)
		}
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// Close sends a websocket close frame and shuts down all goroutines.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
