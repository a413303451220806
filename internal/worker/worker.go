package worker

import (
	"context"
	"log/slog"

	"github.com/coinhunt/roomengine/internal/cache"
	"github.com/coinhunt/roomengine/pkg/core"
)

// Engine is the slice of the room engine the handlers drive.
type Engine interface {
	ListAvailable(room string) ([]core.Coin, bool)
	Grab(ctx context.Context, room string, id int) (core.Coin, error)
	Nearby(ctx context.Context, room string, center core.Coordinates, radius float64) ([]core.Coin, error)
}

// Sender delivers a reply to one transport session.
type Sender interface {
	Send(session, msgType string, args ...any) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Engine        Engine
	Sender        Sender
	Subscriptions *cache.Subscriptions
	Logger        *slog.Logger
}

// Manager turns transport events into engine calls.
type Manager struct {
	deps Dependencies
	log  *slog.Logger
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Subscriptions == nil {
		deps.Subscriptions = cache.NewSubscriptions()
	}
	return &Manager{
		deps: deps,
		log:  log.With("component", "worker"),
	}
}

// Subscriptions exposes the room subscription registry the handlers maintain.
func (m *Manager) Subscriptions() *cache.Subscriptions {
	return m.deps.Subscriptions
}
