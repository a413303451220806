package engine

import (
	"context"
	"fmt"

	"github.com/coinhunt/roomengine/internal/geo"
	"github.com/coinhunt/roomengine/internal/storage"
	"github.com/coinhunt/roomengine/pkg/core"
)

func (e *Engine) sample(lo, hi int) int {
	return lo + e.opts.IntN(hi-lo+1)
}

// Generate replaces a room's coins with a fresh batch sampled from cfg.
//
// Ids run 1..cfg.Coins. The previous batch and its index key are discarded
// first. Index writes are all-or-nothing for the room: if any fails the room
// is left known and empty, and the error wraps ErrIndexUnavailable.
func (e *Engine) Generate(ctx context.Context, cfg core.RoomConfig) error {
	if err := e.validate(cfg); err != nil {
		return err
	}

	coins := make([]core.Coin, 0, cfg.Coins)
	members := make([]storage.Member, 0, cfg.Coins)
	for id := 1; id <= cfg.Coins; id++ {
		c := core.Coin{
			ID:   id,
			Room: cfg.Room,
			Position: core.Coordinates{
				X: e.sample(cfg.Area.XMin, cfg.Area.XMax),
				Y: e.sample(cfg.Area.YMin, cfg.Area.YMax),
				Z: e.sample(cfg.Area.ZMin, cfg.Area.ZMax),
			},
		}
		lon, lat, err := e.opts.Projection.LonLat(c.Position)
		if err != nil {
			return &ConfigurationError{Room: cfg.Room, Reason: err.Error()}
		}
		coins = append(coins, c)
		members = append(members, storage.Member{
			Name:      geo.MemberKey(id),
			Longitude: lon,
			Latitude:  lat,
			Meta: map[string]any{
				"x": c.Position.X, "y": c.Position.Y, "z": c.Position.Z,
				"roomId": cfg.RoomID,
			},
		})
	}

	r := e.roomOrCreate(cfg.Room)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := e.opts.Now()
	r.config = cfg
	r.createdAt = now
	r.expiresAt = now.Add(e.opts.TTL)
	r.expired = false
	r.clear()

	if err := e.writeBatch(ctx, cfg.Room, members); err != nil {
		e.metrics.indexErrors.Add(ctx, 1, roomAttr(cfg.Room))
		e.abandonKey(ctx, r)
		e.log.Error("Coin generation failed, room left empty", "room", cfg.Room, "error", err)
		return err
	}

	r.coins = coins
	r.dropKey = false
	e.metrics.generated.Add(ctx, int64(len(coins)), roomAttr(cfg.Room))
	e.log.Info("Generated coins", "room", cfg.Room, "coins", len(coins), "expiresAt", r.expiresAt)
	return nil
}

// writeBatch replaces the room's index key with members and sets its TTL.
func (e *Engine) writeBatch(ctx context.Context, room string, members []storage.Member) error {
	ictx, cancel := e.indexCtx(ctx)
	defer cancel()

	if err := e.index.Delete(ictx, room); err != nil {
		return indexErr("delete", room, err)
	}
	if len(members) == 0 {
		return nil
	}
	if err := e.index.GeoAdd(ictx, room, members...); err != nil {
		return indexErr("geoadd", room, err)
	}
	if err := e.index.Expire(ictx, room, e.opts.TTL); err != nil {
		return indexErr("expire", room, err)
	}
	return nil
}

// abandonKey drops a partially written key, or records it as debt for the
// janitor. Caller holds r.mu.
func (e *Engine) abandonKey(ctx context.Context, r *room) {
	ictx, cancel := e.indexCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := e.index.Delete(ictx, r.name); err != nil {
		r.dropKey = true
		e.log.Warn("Could not drop index key, will retry", "room", r.name, "error", err)
		return
	}
	r.dropKey = false
}

// GenerateAll runs Generate for each config in order. Failures are logged and
// do not stop the remaining rooms; the count of successful rooms is returned.
func (e *Engine) GenerateAll(ctx context.Context, configs []core.RoomConfig) (int, error) {
	var (
		ok    int
		first error
	)
	for _, cfg := range configs {
		if err := e.Generate(ctx, cfg); err != nil {
			e.log.Error("Skipping room", "room", cfg.Room, "error", err)
			if first == nil {
				first = fmt.Errorf("room %q: %w", cfg.Room, err)
			}
			continue
		}
		ok++
	}
	return ok, first
}
