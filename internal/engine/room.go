package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/coinhunt/roomengine/pkg/core"
)

type room struct {
	name string

	mu        sync.RWMutex
	coins     []core.Coin
	config    core.RoomConfig
	createdAt time.Time
	expiresAt time.Time
	expired   bool

	// index cleanup owed after failed calls
	debt    []string
	dropKey bool
}

func (r *room) lapsed(now time.Time) bool {
	return r.expired || (!r.expiresAt.IsZero() && !now.Before(r.expiresAt))
}

// live copies the coins still valid at now. Caller holds r.mu.
func (r *room) live(now time.Time) []core.Coin {
	if r.lapsed(now) {
		return []core.Coin{}
	}
	out := make([]core.Coin, len(r.coins))
	copy(out, r.coins)
	return out
}

func (r *room) summary(now time.Time) core.RoomSummary {
	available := len(r.coins)
	if r.lapsed(now) {
		available = 0
	}
	return core.RoomSummary{
		Room:           r.name,
		RoomID:         r.config.RoomID,
		CoinsAvailable: available,
		Area:           r.config.Area,
		CreatedAt:      r.createdAt,
		ExpiresAt:      r.expiresAt,
		Expired:        r.lapsed(now),
	}
}

// clear empties the room and forgets debt owed on its members. Caller holds r.mu.
func (r *room) clear() {
	r.coins = nil
	r.debt = nil
}

// MaxCoins bounds a single generation batch.
const MaxCoins = 1_000_000

// validate rejects configs that cannot be sampled or projected. It runs before
// anything is allocated from cfg.
func (e *Engine) validate(cfg core.RoomConfig) error {
	a := cfg.Area
	switch {
	case cfg.Room == "":
		return &ConfigurationError{Reason: "room name is empty"}
	case cfg.Coins < 0:
		return &ConfigurationError{Room: cfg.Room, Reason: fmt.Sprintf("negative coin count %d", cfg.Coins)}
	case cfg.Coins > MaxCoins:
		return &ConfigurationError{Room: cfg.Room, Reason: fmt.Sprintf("coin count %d exceeds %d", cfg.Coins, MaxCoins)}
	case a.XMax < a.XMin:
		return &ConfigurationError{Room: cfg.Room, Reason: fmt.Sprintf("xmax %d < xmin %d", a.XMax, a.XMin)}
	case a.YMax < a.YMin:
		return &ConfigurationError{Room: cfg.Room, Reason: fmt.Sprintf("ymax %d < ymin %d", a.YMax, a.YMin)}
	case a.ZMax < a.ZMin:
		return &ConfigurationError{Room: cfg.Room, Reason: fmt.Sprintf("zmax %d < zmin %d", a.ZMax, a.ZMin)}
	case !sampleable(a.XMin, a.XMax), !sampleable(a.YMin, a.YMax), !sampleable(a.ZMin, a.ZMax):
		return &ConfigurationError{Room: cfg.Room, Reason: "area span too large"}
	}
	// x and y project linearly, so the corners bound every sampled position.
	for _, c := range []core.Coordinates{{X: a.XMin, Y: a.YMin}, {X: a.XMax, Y: a.YMax}} {
		if _, _, err := e.opts.Projection.LonLat(c); err != nil {
			return &ConfigurationError{Room: cfg.Room, Reason: err.Error()}
		}
	}
	return nil
}

// sampleable reports whether hi-lo+1 fits in an int. Requires lo <= hi.
func sampleable(lo, hi int) bool {
	span := hi - lo
	return span >= 0 && span < math.MaxInt
}

func indexErr(op, room string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIndexUnavailable, op, room, err)
}
