// Package gormstorage implements storage.Backend on any GORM dialect.
// Distances are computed in Go after a bounding-box prefilter in SQL.
package gormstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/coinhunt/roomengine/internal/geo"
	"github.com/coinhunt/roomengine/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds what the backend needs from its owner.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	Now    func() time.Time
}

// Backend implements storage.Backend over two tables: geo_keys and geo_members.
type Backend struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

func New(deps Dependencies) *Backend {
	b := &Backend{db: deps.DB, log: deps.Logger, now: deps.Now}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// DB exposes the handle for dialect wrappers.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.db == nil {
		return errors.New("gorm backend: no database")
	}
	if err := b.db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("migrate geo tables: %w", err)
	}
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (b *Backend) Close() error {
	return nil
}

// liveKey loads key inside tx, purging it if expired. Returns nil when absent.
func (b *Backend) liveKey(tx *gorm.DB, key string) (*GeoKey, error) {
	var k GeoKey
	err := tx.Where("geo_key = ?", key).Limit(1).Find(&k).Error
	if err != nil {
		return nil, err
	}
	if k.Key == "" {
		return nil, nil
	}
	if k.ExpiresAt != nil && !b.now().Before(*k.ExpiresAt) {
		if err := purge(tx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &k, nil
}

func purge(tx *gorm.DB, keys ...string) error {
	if err := tx.Where("geo_key IN ?", keys).Delete(&GeoMember{}).Error; err != nil {
		return err
	}
	return tx.Where("geo_key IN ?", keys).Delete(&GeoKey{}).Error
}

func toRow(key string, m storage.Member) (GeoMember, error) {
	wkb, err := geo.WebMercatorWKB(m.Longitude, m.Latitude)
	if err != nil {
		return GeoMember{}, fmt.Errorf("member %s: %w", m.Name, err)
	}
	row := GeoMember{
		Key:         key,
		Member:      m.Name,
		Longitude:   m.Longitude,
		Latitude:    m.Latitude,
		LocationWKB: wkb,
	}
	if len(m.Meta) > 0 {
		raw, err := json.Marshal(m.Meta)
		if err != nil {
			return GeoMember{}, fmt.Errorf("member %s meta: %w", m.Name, err)
		}
		row.Meta = datatypes.JSON(raw)
	}
	return row, nil
}

func fromRow(row GeoMember) storage.Member {
	m := storage.Member{
		Name:      row.Member,
		Longitude: row.Longitude,
		Latitude:  row.Latitude,
	}
	if len(row.Meta) > 0 {
		_ = json.Unmarshal(row.Meta, &m.Meta)
	}
	return m
}

func (b *Backend) GeoAdd(ctx context.Context, key string, members ...storage.Member) error {
	if len(members) == 0 {
		return nil
	}
	rows := make([]GeoMember, 0, len(members))
	for _, m := range members {
		row, err := toRow(key, m)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		k, err := b.liveKey(tx, key)
		if err != nil {
			return err
		}
		if k == nil {
			if err := tx.Create(&GeoKey{Key: key}).Error; err != nil {
				return fmt.Errorf("create key %s: %w", key, err)
			}
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "geo_key"}, {Name: "member"}},
			DoUpdates: clause.AssignmentColumns([]string{"longitude", "latitude", "location_wkb", "meta"}),
		}).Create(&rows).Error
		if err != nil {
			return fmt.Errorf("insert members %s: %w", key, err)
		}
		return nil
	})
}

func (b *Backend) GeoRemove(ctx context.Context, key string, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		k, err := b.liveKey(tx, key)
		if err != nil || k == nil {
			return err
		}
		if err := tx.Where("geo_key = ? AND member IN ?", key, names).Delete(&GeoMember{}).Error; err != nil {
			return fmt.Errorf("remove members %s: %w", key, err)
		}
		var left int64
		if err := tx.Model(&GeoMember{}).Where("geo_key = ?", key).Count(&left).Error; err != nil {
			return err
		}
		if left == 0 {
			return tx.Where("geo_key = ?", key).Delete(&GeoKey{}).Error
		}
		return nil
	})
}

func (b *Backend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		k, err := b.liveKey(tx, key)
		if err != nil {
			return err
		}
		if k == nil {
			return storage.ErrKeyNotFound
		}
		at := b.now().Add(ttl).UTC()
		return tx.Model(&GeoKey{}).Where("geo_key = ?", key).Update("expires_at", at).Error
	})
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return purge(tx, key)
	})
}

func (b *Backend) Members(ctx context.Context, key string) ([]string, error) {
	names := []string{}
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		k, err := b.liveKey(tx, key)
		if err != nil || k == nil {
			return err
		}
		return tx.Model(&GeoMember{}).Where("geo_key = ?", key).Order("member").Pluck("member", &names).Error
	})
	if err != nil {
		return nil, fmt.Errorf("members %s: %w", key, err)
	}
	return names, nil
}

func (b *Backend) Nearby(ctx context.Context, key string, lon, lat, radiusMeters float64) ([]storage.Member, error) {
	var rows []GeoMember
	minLon, minLat, maxLon, maxLat := geo.BoundingBox(lon, lat, radiusMeters)

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		k, err := b.liveKey(tx, key)
		if err != nil || k == nil {
			return err
		}
		return tx.Where("geo_key = ? AND longitude BETWEEN ? AND ? AND latitude BETWEEN ? AND ?",
			key, minLon, maxLon, minLat, maxLat).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("nearby %s: %w", key, err)
	}

	found := make([]storage.Member, 0, len(rows))
	for _, row := range rows {
		d := geo.Haversine(lon, lat, row.Longitude, row.Latitude)
		if d > radiusMeters {
			continue
		}
		m := fromRow(row)
		m.Distance = d
		found = append(found, m)
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Distance == found[j].Distance {
			return found[i].Name < found[j].Name
		}
		return found[i].Distance < found[j].Distance
	})
	return found, nil
}

// Sweep deletes every key, and its members, whose expiry is at or before now.
func (b *Backend) Sweep(ctx context.Context, now time.Time) (int, error) {
	var keys []string
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&GeoKey{}).
			Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).
			Pluck("geo_key", &keys).Error; err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		return purge(tx, keys...)
	})
	if err != nil {
		return 0, fmt.Errorf("sweep expired keys: %w", err)
	}
	if len(keys) > 0 {
		b.log.Debug("Swept expired geo keys", "count", len(keys))
	}
	return len(keys), nil
}
