package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coinhunt/roomengine/internal/cache"
	"github.com/coinhunt/roomengine/internal/dispatcher"
	"github.com/coinhunt/roomengine/internal/engine"
	"github.com/coinhunt/roomengine/internal/storage/memory"
	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/coinhunt/roomengine/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct{}

func (mockLogger) Debug(string, ...any) {}
func (mockLogger) Info(string, ...any)  {}
func (mockLogger) Warn(string, ...any)  {}
func (mockLogger) Error(string, ...any) {}

type sent struct {
	Session string
	Type    string
	Args    []any
}

type mockSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (s *mockSender) Send(session, msgType string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, sent{Session: session, Type: msgType, Args: args})
	return nil
}

func (s *mockSender) all() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.msgs...)
}

type fixture struct {
	eng    *engine.Engine
	sender *mockSender
	subs   *cache.Subscriptions
	d      *dispatcher.Dispatcher
	grabs  chan core.GrabEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eng, err := engine.New(memory.New(), engine.Options{})
	require.NoError(t, err)
	require.NoError(t, eng.Generate(context.Background(), core.RoomConfig{
		Room:  "lobby",
		Coins: 5,
		Area:  core.RoomArea{XMax: 10, YMax: 10, ZMax: 10},
	}))

	f := &fixture{
		eng:    eng,
		sender: &mockSender{},
		subs:   cache.NewSubscriptions(),
		grabs:  make(chan core.GrabEvent, 16),
	}
	eng.Subscribe(engine.NotifierFunc(func(_ context.Context, ev core.GrabEvent) { f.grabs <- ev }))

	f.d, err = dispatcher.New(mockLogger{})
	require.NoError(t, err)
	NewManager(Dependencies{
		Engine:        eng,
		Sender:        f.sender,
		Subscriptions: f.subs,
	}).RegisterHandlers(f.d)
	return f
}

func args(t *testing.T, vals ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		out[i] = raw
	}
	return out
}

func TestRegisterHandlers_RegistersAllEvents(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []string{
		streaming.TypeGetCoins,
		streaming.TypeGrabCoin,
		streaming.TypeJoinRoom,
		streaming.TypeLeaveRoom,
		streaming.TypeNearbyCoins,
	} {
		assert.True(t, f.d.HasHandler(typ), typ)
	}
}

func TestHandleGetCoins(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeGetCoins, Session: "s1", Args: args(t, "lobby")})
	require.NoError(t, err)

	msgs := f.sender.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "s1", msgs[0].Session)
	assert.Equal(t, streaming.TypeCoins, msgs[0].Type)
	payload := msgs[0].Args[0].(streaming.CoinsPayload)
	assert.Equal(t, "lobby", payload.Room)
	assert.Len(t, payload.Coins, 5)
	assert.Equal(t, []string{"s1"}, f.subs.Members("lobby"))
}

func TestHandleGetCoins_UnknownRoomSubscribesWithoutReply(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeGetCoins, Session: "s1", Args: args(t, "attic")})
	require.NoError(t, err)
	assert.Empty(t, f.sender.all())
	assert.Equal(t, []string{"s1"}, f.subs.Members("attic"))
}

func TestHandleGetCoins_MissingRoom(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeGetCoins, Session: "s1"})
	require.Error(t, err)
	assert.Empty(t, f.sender.all())
}

func TestHandleGetCoins_SendFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("session gone")

	_, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeGetCoins, Session: "s1", Args: args(t, "lobby")})
	require.Error(t, err)
}

func TestHandleJoinLeave(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeJoinRoom, Session: "s1", Args: args(t, "lobby")})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, f.subs.Members("lobby"))
	msgs := f.sender.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, streaming.TypeJoined, msgs[0].Type)
	assert.Equal(t, streaming.JoinedPayload{Room: "lobby"}, msgs[0].Args[0])

	left, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeLeaveRoom, Session: "s1", Args: args(t, "lobby")})
	require.NoError(t, err)
	assert.Equal(t, true, left)
	assert.Empty(t, f.subs.Members("lobby"))
}

func TestHandleGrabCoin(t *testing.T) {
	f := newFixture(t)

	coins, ok := f.eng.ListAvailable("lobby")
	require.True(t, ok)
	target := coins[0]

	result, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeGrabCoin, Session: "s1", Args: args(t, target.ID, "lobby")})
	require.NoError(t, err)
	assert.Equal(t, target, result)

	select {
	case ev := <-f.grabs:
		assert.Equal(t, target, ev.Coin)
	case <-time.After(time.Second):
		t.Fatal("grab was not notified")
	}

	left, _ := f.eng.ListAvailable("lobby")
	assert.Len(t, left, 4)
}

func TestHandleGrabCoin_MissIsNotAnError(t *testing.T) {
	f := newFixture(t)

	for _, a := range [][]any{
		{999, "lobby"},
		{"abc", "lobby"},
		{1.5, "lobby"},
		{"1", "lobby"},
		{1, "attic"},
	} {
		result, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeGrabCoin, Session: "s1", Args: args(t, a...)})
		require.NoError(t, err, a)
		assert.Nil(t, result, a)
	}
	assert.Empty(t, f.grabs)
}

func TestHandleGrabCoin_SecondGrabMisses(t *testing.T) {
	f := newFixture(t)
	coins, _ := f.eng.ListAvailable("lobby")
	id := coins[0].ID

	first, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeGrabCoin, Session: "s1", Args: args(t, id, "lobby")})
	require.NoError(t, err)
	assert.NotNil(t, first)

	second, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeGrabCoin, Session: "s2", Args: args(t, id, "lobby")})
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestHandleNearbyCoins(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeNearbyCoins, Session: "s1", Args: args(t, "lobby", 5, 5, 100)})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.sender.all()) == 1 }, time.Second, 5*time.Millisecond)
	msg := f.sender.all()[0]
	assert.Equal(t, streaming.TypeNearbyCoins, msg.Type)
	payload := msg.Args[0].(streaming.CoinsPayload)
	assert.Equal(t, "lobby", payload.Room)
	assert.Len(t, payload.Coins, 5)
}

func TestHandleNearbyCoins_ErrorsAreReported(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(dispatcher.Event{Type: streaming.TypeNearbyCoins, Session: "s1", Args: args(t, "attic", 5, 5, 1)})
	require.NoError(t, err)
	_, err = f.d.Dispatch(dispatcher.Event{Type: streaming.TypeNearbyCoins, Session: "s1", Args: args(t, "lobby", 5)})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.sender.all()) == 2 }, time.Second, 5*time.Millisecond)
	for _, msg := range f.sender.all() {
		assert.Equal(t, streaming.TypeError, msg.Type)
		payload := msg.Args[0].(streaming.ErrorPayload)
		assert.Equal(t, streaming.TypeNearbyCoins, payload.For)
		assert.NotEmpty(t, payload.Message)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Dependencies{})
	assert.NotNil(t, m.Subscriptions())
	assert.NotNil(t, m.log)
}
