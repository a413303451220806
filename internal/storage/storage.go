// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by operations that require an existing, unexpired key.
var ErrKeyNotFound = errors.New("geo key not found")

// Member is one positioned entry under a geo key.
type Member struct {
	Name      string
	Longitude float64
	Latitude  float64

	// Meta is optional and kept only by backends with a document column.
	Meta map[string]any

	// Distance in meters from the query center; set by Nearby only.
	Distance float64
}

// Backend is the geospatial index contract. Keys with a lapsed TTL behave as absent.
type Backend interface {
	Init() error
	Close() error

	// GeoAdd inserts or repositions members. A new key has no TTL; an existing key keeps its TTL.
	GeoAdd(ctx context.Context, key string, members ...Member) error
	// GeoRemove removes members by name. Missing names are ignored.
	GeoRemove(ctx context.Context, key string, names ...string) error
	// Expire sets the key TTL. Returns ErrKeyNotFound for an absent key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Delete drops the key and every member under it.
	Delete(ctx context.Context, key string) error
	// Members lists member names. An absent key yields an empty slice.
	Members(ctx context.Context, key string) ([]string, error)
	// Nearby returns members within radiusMeters of lon/lat, nearest first.
	Nearby(ctx context.Context, key string, lon, lat, radiusMeters float64) ([]Member, error)
}

// Sweeper is implemented by backends that do not evict expired keys on their own.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}
