package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinhunt/roomengine/internal/cache"
	"github.com/coinhunt/roomengine/internal/channel"
	"github.com/coinhunt/roomengine/internal/dispatcher"
	"github.com/coinhunt/roomengine/internal/engine"
	"github.com/coinhunt/roomengine/internal/logging"
	"github.com/coinhunt/roomengine/internal/storage/memory"
	"github.com/coinhunt/roomengine/internal/worker"
	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/coinhunt/roomengine/pkg/streaming"

	"github.com/rs/zerolog"
)

type harness struct {
	srv    *Server
	http   *httptest.Server
	eng    *engine.Engine
	subs   *cache.Subscriptions
	wsURL  string
	logger *slog.Logger
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	eng, err := engine.New(memory.New(), engine.Options{Logger: logger})
	require.NoError(t, err)
	require.NoError(t, eng.Generate(context.Background(), core.RoomConfig{
		Room:  "lobby",
		Coins: 3,
		Area:  core.RoomArea{XMax: 10, YMax: 10, ZMax: 10},
	}))

	subs := cache.NewSubscriptions()
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)

	srv := NewServer(cfg, d, subs, logger)
	worker.NewManager(worker.Dependencies{
		Engine:        eng,
		Sender:        srv,
		Subscriptions: subs,
		Logger:        logger,
	}).RegisterHandlers(d)
	eng.Subscribe(srv)

	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		_ = srv.Close()
		hs.Close()
	})

	return &harness{
		srv:    srv,
		http:   hs,
		eng:    eng,
		subs:   subs,
		wsURL:  "ws" + strings.TrimPrefix(hs.URL, "http"),
		logger: logger,
	}
}

func (h *harness) dial(t *testing.T) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *ws.Conn, msgType string, args ...any) {
	t.Helper()
	data, err := streaming.Marshal(msgType, args...)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, data))
}

// expect reads until a message of msgType arrives.
func expect(t *testing.T, conn *ws.Conn, msgType string) streaming.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", msgType)
		var env streaming.Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		if env.Type == msgType {
			return env
		}
	}
}

func decodeArg[T any](t *testing.T, env streaming.Envelope, i int) T {
	t.Helper()
	require.Greater(t, len(env.Args), i)
	var v T
	require.NoError(t, json.Unmarshal(env.Args[i], &v))
	return v
}

func TestServer_GetCoinsRepliesToRequester(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.dial(t)

	send(t, conn, streaming.TypeGetCoins, "lobby")
	env := expect(t, conn, streaming.TypeCoins)

	payload := decodeArg[streaming.CoinsPayload](t, env, 0)
	assert.Equal(t, "lobby", payload.Room)
	assert.Len(t, payload.Coins, 3)
}

func TestServer_GrabBroadcastToSubscribers(t *testing.T) {
	h := newHarness(t, Config{})
	grabber := h.dial(t)
	watcher := h.dial(t)
	outsider := h.dial(t)

	send(t, grabber, streaming.TypeJoinRoom, "lobby")
	expect(t, grabber, streaming.TypeJoined)
	send(t, watcher, streaming.TypeJoinRoom, "lobby")
	expect(t, watcher, streaming.TypeJoined)
	send(t, outsider, streaming.TypeJoinRoom, "arena")
	expect(t, outsider, streaming.TypeJoined)

	coins, ok := h.eng.ListAvailable("lobby")
	require.True(t, ok)
	target := coins[0]

	send(t, grabber, streaming.TypeGrabCoin, target.ID, "lobby")

	for _, conn := range []*ws.Conn{grabber, watcher} {
		env := expect(t, conn, streaming.TypeCoinGrabbed)
		assert.Equal(t, target, decodeArg[core.Coin](t, env, 0))
	}

	require.NoError(t, outsider.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := outsider.ReadMessage()
	assert.Error(t, err, "a session in another room must not see the grab")
}

func TestServer_GrabMissIsSilent(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.dial(t)

	send(t, conn, streaming.TypeJoinRoom, "lobby")
	expect(t, conn, streaming.TypeJoined)
	send(t, conn, streaming.TypeGrabCoin, 999, "lobby")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestServer_NearbyCoins(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.dial(t)

	send(t, conn, streaming.TypeNearbyCoins, "lobby", 5, 5, 50)
	env := expect(t, conn, streaming.TypeNearbyCoins)
	payload := decodeArg[streaming.CoinsPayload](t, env, 0)
	assert.Len(t, payload.Coins, 3)
}

func TestServer_ErrorReplies(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	env := expect(t, conn, streaming.TypeError)
	assert.Equal(t, "malformed message", decodeArg[streaming.ErrorPayload](t, env, 0).Message)

	send(t, conn, "teleport")
	env = expect(t, conn, streaming.TypeError)
	assert.Equal(t, "teleport", decodeArg[streaming.ErrorPayload](t, env, 0).For)

	send(t, conn, streaming.TypeJoinRoom)
	env = expect(t, conn, streaming.TypeError)
	assert.Equal(t, streaming.TypeJoinRoom, decodeArg[streaming.ErrorPayload](t, env, 0).For)
}

func TestServer_DisconnectLeavesRooms(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.dial(t)

	send(t, conn, streaming.TypeJoinRoom, "lobby")
	expect(t, conn, streaming.TypeJoined)
	require.Equal(t, 1, h.subs.Count("lobby"))
	require.Equal(t, 1, h.srv.SessionCount())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return h.srv.SessionCount() == 0 && h.subs.Count("lobby") == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Room state is untouched by transport disconnects.
	coins, ok := h.eng.ListAvailable("lobby")
	assert.True(t, ok)
	assert.Len(t, coins, 3)
}

func TestServer_SendUnknownSession(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.srv.Send("nobody", streaming.TypeCoins)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestServer_BroadcastCountsAcceptingSessions(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.dial(t)
	b := h.dial(t)
	for _, conn := range []*ws.Conn{a, b} {
		send(t, conn, streaming.TypeJoinRoom, "lobby")
		expect(t, conn, streaming.TypeJoined)
	}

	n, err := h.srv.Broadcast("lobby", streaming.TypeJoined, streaming.JoinedPayload{Room: "lobby"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = h.srv.Broadcast("empty", streaming.TypeJoined)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSession_SendDropsWhenFull(t *testing.T) {
	sess := &session{
		id:     "s",
		sendCh: channel.New[[]byte](1),
		done:   make(chan struct{}),
		logger: slog.New(slog.DiscardHandler),
	}
	assert.True(t, sess.send([]byte("a")))
	assert.False(t, sess.send([]byte("b")))
	assert.Equal(t, 1, sess.sendCh.Len())

	close(sess.done)
	<-sess.sendCh.Receive()
	assert.False(t, sess.send([]byte("c")), "closed sessions accept nothing")
}

func TestClient_JoinAndReceive(t *testing.T) {
	h := newHarness(t, Config{})

	c := NewClient(h.logger)
	require.NoError(t, c.Dial(h.wsURL))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Join("lobby"))
	waitFor(t, c, streaming.TypeJoined)

	coins, _ := h.eng.ListAvailable("lobby")
	require.NoError(t, c.Send(streaming.TypeGrabCoin, coins[0].ID, "lobby"))
	env := waitFor(t, c, streaming.TypeCoinGrabbed)
	assert.Equal(t, coins[0], decodeArg[core.Coin](t, env, 0))

	require.NoError(t, c.Leave("lobby"))
	assert.Eventually(t, func() bool { return h.subs.Count("lobby") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	c := NewClient(nil)
	require.NoError(t, c.Dial(h.wsURL))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestClient_DialFailure(t *testing.T) {
	c := NewClient(nil)
	assert.Error(t, c.Dial("ws://127.0.0.1:1/ws"))
}

func waitFor(t *testing.T, c *Client, msgType string) streaming.Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-c.Events():
			if env.Type == msgType {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}
