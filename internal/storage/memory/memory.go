// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/coinhunt/roomengine/internal/geo"
	"github.com/coinhunt/roomengine/internal/storage"
	geom "github.com/peterstace/simplefeatures/geom"
)

type point struct {
	geom.Point
	meta map[string]any
}

type geoKey struct {
	members   map[string]point
	expiresAt time.Time // zero means no TTL
}

func (k *geoKey) expired(now time.Time) bool {
	return !k.expiresAt.IsZero() && !now.Before(k.expiresAt)
}

// Backend is an in-process geospatial index. Expired keys are dropped lazily
// on access and eagerly by Sweep.
type Backend struct {
	mu   sync.Mutex
	keys map[string]*geoKey
	now  func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock overrides time.Now for TTL evaluation.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		keys: make(map[string]*geoKey),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

// live returns the key if present and unexpired. Caller holds b.mu.
func (b *Backend) live(key string) *geoKey {
	k, ok := b.keys[key]
	if !ok {
		return nil
	}
	if k.expired(b.now()) {
		delete(b.keys, key)
		return nil
	}
	return k
}

func (b *Backend) GeoAdd(_ context.Context, key string, members ...storage.Member) error {
	if len(members) == 0 {
		return nil
	}
	points := make([]point, len(members))
	for i, m := range members {
		p, err := geo.Point(m.Longitude, m.Latitude)
		if err != nil {
			return fmt.Errorf("member %s: %w", m.Name, err)
		}
		points[i] = point{Point: p, meta: m.Meta}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := b.live(key)
	if k == nil {
		k = &geoKey{members: make(map[string]point, len(members))}
		b.keys[key] = k
	}
	for i, m := range members {
		k.members[m.Name] = points[i]
	}
	return nil
}

func (b *Backend) GeoRemove(_ context.Context, key string, names ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := b.live(key)
	if k == nil {
		return nil
	}
	for _, name := range names {
		delete(k.members, name)
	}
	if len(k.members) == 0 {
		delete(b.keys, key)
	}
	return nil
}

func (b *Backend) Expire(_ context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := b.live(key)
	if k == nil {
		return storage.ErrKeyNotFound
	}
	k.expiresAt = b.now().Add(ttl)
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.keys, key)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Members(_ context.Context, key string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := b.live(key)
	if k == nil {
		return []string{}, nil
	}
	names := make([]string, 0, len(k.members))
	for name := range k.members {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (b *Backend) Nearby(_ context.Context, key string, lon, lat, radiusMeters float64) ([]storage.Member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := b.live(key)
	if k == nil {
		return []storage.Member{}, nil
	}
	found := make([]storage.Member, 0)
	for name, p := range k.members {
		xy, ok := p.XY()
		if !ok {
			continue
		}
		d := geo.Haversine(lon, lat, xy.X, xy.Y)
		if d > radiusMeters {
			continue
		}
		found = append(found, storage.Member{
			Name:      name,
			Longitude: xy.X,
			Latitude:  xy.Y,
			Meta:      p.meta,
			Distance:  d,
		})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Distance == found[j].Distance {
			return found[i].Name < found[j].Name
		}
		return found[i].Distance < found[j].Distance
	})
	return found, nil
}

// Sweep drops every key whose TTL has lapsed at now.
func (b *Backend) Sweep(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for key, k := range b.keys {
		if k.expired(now) {
			delete(b.keys, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live keys.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	now := b.now()
	for _, k := range b.keys {
		if !k.expired(now) {
			n++
		}
	}
	return n
}
