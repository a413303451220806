package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/coinhunt/roomengine/internal/dispatcher"
	"github.com/coinhunt/roomengine/internal/engine"
	"github.com/coinhunt/roomengine/internal/parser"
	"github.com/coinhunt/roomengine/pkg/streaming"
)

// RegisterHandlers registers all event handlers with the dispatcher.
//
// Synchronous handlers report failures through their return value and the
// transport answers the sender. Buffered handlers reply on their own.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Subscription changes - sync so a following grab sees the room joined
	d.Register(streaming.TypeGetCoins, m.handleGetCoins, dispatcher.Logged())
	d.Register(streaming.TypeJoinRoom, m.handleJoinRoom, dispatcher.Logged())
	d.Register(streaming.TypeLeaveRoom, m.handleLeaveRoom, dispatcher.Logged())

	// Grabs - sync; the engine arbitrates concurrent sessions per room
	d.Register(streaming.TypeGrabCoin, m.handleGrabCoin, dispatcher.Logged())

	// Proximity queries hit the index - buffered
	d.Register(streaming.TypeNearbyCoins, m.handleNearbyCoins, dispatcher.Buffered(1024), dispatcher.Logged())
}

func (m *Manager) handleGetCoins(e dispatcher.Event) (any, error) {
	room, err := parser.Room(e.Args, 0)
	if err != nil {
		return nil, fmt.Errorf("getCoins: %w", err)
	}
	m.deps.Subscriptions.Join(room, e.Session)

	coins, ok := m.deps.Engine.ListAvailable(room)
	if !ok {
		m.log.Debug("getCoins for unknown room", "room", room, "session", e.Session)
		return nil, nil
	}
	payload := streaming.CoinsPayload{Room: room, Coins: coins}
	if err := m.deps.Sender.Send(e.Session, streaming.TypeCoins, payload); err != nil {
		return nil, fmt.Errorf("getCoins: %w", err)
	}
	return payload, nil
}

func (m *Manager) handleJoinRoom(e dispatcher.Event) (any, error) {
	room, err := parser.Room(e.Args, 0)
	if err != nil {
		return nil, fmt.Errorf("joinRoom: %w", err)
	}
	m.deps.Subscriptions.Join(room, e.Session)
	payload := streaming.JoinedPayload{Room: room}
	if err := m.deps.Sender.Send(e.Session, streaming.TypeJoined, payload); err != nil {
		return nil, fmt.Errorf("joinRoom: %w", err)
	}
	return payload, nil
}

func (m *Manager) handleLeaveRoom(e dispatcher.Event) (any, error) {
	room, err := parser.Room(e.Args, 0)
	if err != nil {
		return nil, fmt.Errorf("leaveRoom: %w", err)
	}
	return m.deps.Subscriptions.Leave(room, e.Session), nil
}

// handleGrabCoin commits a grab. The coinGrabbed broadcast is sent by the
// engine's notifier, not here, so every subscriber sees grabs in commit order.
func (m *Manager) handleGrabCoin(e dispatcher.Event) (any, error) {
	req, err := parser.ParseGrab(e.Args)
	if err != nil {
		return nil, fmt.Errorf("grabCoin: %w", err)
	}

	coin, err := m.deps.Engine.Grab(context.Background(), req.Room, req.CoinID)
	if errors.Is(err, engine.ErrNotFound) {
		m.log.Debug("grab missed", "room", req.Room, "coinId", req.CoinID, "session", e.Session)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("grabCoin: %w", err)
	}
	return coin, nil
}

func (m *Manager) handleNearbyCoins(e dispatcher.Event) (any, error) {
	req, err := parser.ParseNearby(e.Args)
	if err != nil {
		return nil, m.fail(e, fmt.Errorf("nearbyCoins: %w", err))
	}

	coins, err := m.deps.Engine.Nearby(context.Background(), req.Room, req.Center, req.Radius)
	if err != nil {
		return nil, m.fail(e, fmt.Errorf("nearbyCoins: %w", err))
	}
	payload := streaming.CoinsPayload{Room: req.Room, Coins: coins}
	if err := m.deps.Sender.Send(e.Session, streaming.TypeNearbyCoins, payload); err != nil {
		return nil, fmt.Errorf("nearbyCoins: %w", err)
	}
	return payload, nil
}

// fail reports err to the sender of e and returns it.
func (m *Manager) fail(e dispatcher.Event, err error) error {
	payload := streaming.ErrorPayload{For: e.Type, Message: err.Error()}
	if sendErr := m.deps.Sender.Send(e.Session, streaming.TypeError, payload); sendErr != nil {
		m.log.Warn("failed to report error", "session", e.Session, "error", sendErr)
	}
	return err
}
