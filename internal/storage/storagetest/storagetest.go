// Package storagetest runs the storage.Backend contract against an implementation.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coinhunt/roomengine/internal/geo"
	"github.com/coinhunt/roomengine/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Harness builds a fresh backend per subtest and moves its clock forward.
type Harness struct {
	New     func(t *testing.T) storage.Backend
	Advance func(d time.Duration)

	SkipNearby bool
}

// Clock is a manually advanced time source for backends that accept one.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func members(n int) []storage.Member {
	out := make([]storage.Member, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, storage.Member{
			Name:      geo.MemberKey(i),
			Longitude: float64(i) * 0.001,
			Latitude:  float64(i) * 0.001,
			Meta:      map[string]any{"x": i},
		})
	}
	return out
}

// Run exercises the contract.
func Run(t *testing.T, h Harness) {
	ctx := context.Background()

	t.Run("absent key", func(t *testing.T) {
		b := h.New(t)
		names, err := b.Members(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, names)
		assert.True(t, errors.Is(b.Expire(ctx, "nope", time.Minute), storage.ErrKeyNotFound))
		assert.NoError(t, b.GeoRemove(ctx, "nope", "coin1"))
		assert.NoError(t, b.Delete(ctx, "nope"))
	})

	t.Run("add and remove", func(t *testing.T) {
		b := h.New(t)
		require.NoError(t, b.GeoAdd(ctx, "room", members(3)...))

		names, err := b.Members(ctx, "room")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"coin1", "coin2", "coin3"}, names)

		require.NoError(t, b.GeoRemove(ctx, "room", "coin2", "coin9"))
		names, err = b.Members(ctx, "room")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"coin1", "coin3"}, names)
	})

	t.Run("keys are independent", func(t *testing.T) {
		b := h.New(t)
		require.NoError(t, b.GeoAdd(ctx, "a", members(2)...))
		require.NoError(t, b.GeoAdd(ctx, "b", members(1)...))
		require.NoError(t, b.Delete(ctx, "a"))

		names, err := b.Members(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, names)

		names, err = b.Members(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, []string{"coin1"}, names)
	})

	t.Run("re-add repositions", func(t *testing.T) {
		b := h.New(t)
		require.NoError(t, b.GeoAdd(ctx, "room", members(1)...))
		require.NoError(t, b.GeoAdd(ctx, "room", storage.Member{Name: "coin1", Longitude: 0.05, Latitude: 0.05}))

		names, err := b.Members(ctx, "room")
		require.NoError(t, err)
		assert.Equal(t, []string{"coin1"}, names)
	})

	t.Run("removing last member drops key", func(t *testing.T) {
		b := h.New(t)
		require.NoError(t, b.GeoAdd(ctx, "room", members(1)...))
		require.NoError(t, b.GeoRemove(ctx, "room", "coin1"))
		assert.ErrorIs(t, b.Expire(ctx, "room", time.Minute), storage.ErrKeyNotFound)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		b := h.New(t)
		require.NoError(t, b.GeoAdd(ctx, "room", members(2)...))
		require.NoError(t, b.Expire(ctx, "room", time.Hour))

		h.Advance(59 * time.Minute)
		names, err := b.Members(ctx, "room")
		require.NoError(t, err)
		assert.Len(t, names, 2)

		h.Advance(2 * time.Minute)
		names, err = b.Members(ctx, "room")
		require.NoError(t, err)
		assert.Empty(t, names)
		assert.ErrorIs(t, b.Expire(ctx, "room", time.Hour), storage.ErrKeyNotFound)
	})

	t.Run("expire refreshes ttl", func(t *testing.T) {
		b := h.New(t)
		require.NoError(t, b.GeoAdd(ctx, "room", members(1)...))
		require.NoError(t, b.Expire(ctx, "room", time.Hour))
		h.Advance(50 * time.Minute)
		require.NoError(t, b.Expire(ctx, "room", time.Hour))
		h.Advance(50 * time.Minute)

		names, err := b.Members(ctx, "room")
		require.NoError(t, err)
		assert.Len(t, names, 1)
	})

	t.Run("add after expiry starts a fresh key", func(t *testing.T) {
		b := h.New(t)
		require.NoError(t, b.GeoAdd(ctx, "room", members(3)...))
		require.NoError(t, b.Expire(ctx, "room", time.Minute))
		h.Advance(2 * time.Minute)

		require.NoError(t, b.GeoAdd(ctx, "room", storage.Member{Name: "coin7", Longitude: 0.01, Latitude: 0.01}))
		names, err := b.Members(ctx, "room")
		require.NoError(t, err)
		assert.Equal(t, []string{"coin7"}, names)
	})

	if h.SkipNearby {
		return
	}

	t.Run("nearby", func(t *testing.T) {
		b := h.New(t)
		require.NoError(t, b.GeoAdd(ctx, "room", members(5)...))

		// coin1 sits at 0.001/0.001, about 157m from the origin; coin2 about 314m.
		found, err := b.Nearby(ctx, "room", 0, 0, 200)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "coin1", found[0].Name)
		assert.InDelta(t, 0.001, found[0].Longitude, 1e-5)
		assert.InDelta(t, geo.Haversine(0, 0, 0.001, 0.001), found[0].Distance, 1)

		found, err = b.Nearby(ctx, "room", 0.003, 0.003, 200)
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, "coin3", found[0].Name)

		found, err = b.Nearby(ctx, "missing", 0, 0, 1e6)
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}
