package gormstorage

import (
	"time"

	"gorm.io/datatypes"
)

// GeoKey is one geo index key with its optional expiry.
type GeoKey struct {
	Key       string     `gorm:"column:geo_key;primaryKey;size:191"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GeoKey) TableName() string { return "geo_keys" }

// GeoMember is one positioned member of a key. LocationWKB holds the
// EPSG:3857 point so spatial tooling can read the table directly.
type GeoMember struct {
	ID          uint           `gorm:"primarykey"`
	Key         string         `gorm:"column:geo_key;size:191;not null;uniqueIndex:idx_geo_member_key_name"`
	Member      string         `gorm:"size:64;not null;uniqueIndex:idx_geo_member_key_name"`
	Longitude   float64        `gorm:"not null;index:idx_geo_member_lonlat"`
	Latitude    float64        `gorm:"not null;index:idx_geo_member_lonlat"`
	LocationWKB []byte         `gorm:"column:location_wkb"`
	Meta        datatypes.JSON `gorm:"type:json"`
	CreatedAt   time.Time
}

func (GeoMember) TableName() string { return "geo_members" }

// Models lists every table the backend migrates.
var Models = []any{&GeoKey{}, &GeoMember{}}
