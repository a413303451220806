package engine

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"github.com/coinhunt/roomengine/internal/geo"
	"github.com/coinhunt/roomengine/pkg/core"
)

// Nearby returns the live coins of a room within radius world units of
// center on the x/y plane, nearest first. The index narrows the candidates
// and room state has the final say.
func (e *Engine) Nearby(ctx context.Context, name string, center core.Coordinates, radius float64) ([]core.Coin, error) {
	if radius < 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: radius %v", ErrInvalidQuery, radius)
	}
	r := e.room(name)
	if r == nil {
		return nil, ErrNotFound
	}
	lon, lat, err := e.opts.Projection.LonLat(center)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	ictx, cancel := e.indexCtx(ctx)
	defer cancel()
	// pad for rounding in the store's geohash encoding
	members, err := e.index.Nearby(ictx, name, lon, lat, e.opts.Projection.RadiusMeters(radius)*1.01+1)
	if err != nil {
		e.metrics.indexErrors.Add(ctx, 1, roomAttr(name))
		return nil, indexErr("nearby", name, err)
	}

	r.mu.RLock()
	live := r.live(e.opts.Now())
	r.mu.RUnlock()

	byID := make(map[int]core.Coin, len(live))
	for _, c := range live {
		byID[c.ID] = c
	}

	found := make([]core.Coin, 0, len(members))
	for _, m := range members {
		id, ok := geo.ParseMemberKey(m.Name)
		if !ok {
			continue
		}
		c, ok := byID[id]
		if !ok {
			continue
		}
		if planar(c.Position, center) > radius {
			continue
		}
		found = append(found, c)
	}
	slices.SortStableFunc(found, func(a, b core.Coin) int {
		da, db := planar(a.Position, center), planar(b.Position, center)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return a.ID - b.ID
	})
	return found, nil
}

func planar(a, b core.Coordinates) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
