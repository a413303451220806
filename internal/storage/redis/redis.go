// Package redisstorage implements storage.Backend on redis native geo commands.
package redisstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/coinhunt/roomengine/internal/config"
	"github.com/coinhunt/roomengine/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Backend stores each geo key as a redis sorted set via GEOADD.
// TTL and expiry are handled by redis itself.
type Backend struct {
	client *redis.Client
}

func New(cfg config.RedisConfig) *Backend {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

func NewWithClient(client *redis.Client) *Backend {
	return &Backend{client: client}
}

// Init verifies the server is reachable.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) GeoAdd(ctx context.Context, key string, members ...storage.Member) error {
	if len(members) == 0 {
		return nil
	}
	locs := make([]*redis.GeoLocation, 0, len(members))
	for _, m := range members {
		locs = append(locs, &redis.GeoLocation{
			Name:      m.Name,
			Longitude: m.Longitude,
			Latitude:  m.Latitude,
		})
	}
	if err := b.client.GeoAdd(ctx, key, locs...).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", key, err)
	}
	return nil
}

func (b *Backend) GeoRemove(ctx context.Context, key string, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	if err := b.client.ZRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := b.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	if !ok {
		return storage.ErrKeyNotFound
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Members(ctx context.Context, key string) ([]string, error) {
	names, err := b.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", key, err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (b *Backend) Nearby(ctx context.Context, key string, lon, lat, radiusMeters float64) ([]storage.Member, error) {
	locs, err := b.client.GeoRadius(ctx, key, lon, lat, &redis.GeoRadiusQuery{
		Radius:    radiusMeters,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius %s: %w", key, err)
	}
	found := make([]storage.Member, 0, len(locs))
	for _, l := range locs {
		found = append(found, storage.Member{
			Name:      l.Name,
			Longitude: l.Longitude,
			Latitude:  l.Latitude,
			Distance:  l.Dist,
		})
	}
	return found, nil
}
