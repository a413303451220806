// pkg/core/room.go
package core

import "time"

// RoomArea is an inclusive axis-aligned bounding box used to sample coin positions.
type RoomArea struct {
	XMax int `json:"xmax" mapstructure:"xmax"`
	XMin int `json:"xmin" mapstructure:"xmin"`
	YMax int `json:"ymax" mapstructure:"ymax"`
	YMin int `json:"ymin" mapstructure:"ymin"`
	ZMax int `json:"zmax" mapstructure:"zmax"`
	ZMin int `json:"zmin" mapstructure:"zmin"`
}

// Contains reports whether c lies within the inclusive bounds of a.
func (a RoomArea) Contains(c Coordinates) bool {
	return c.X >= a.XMin && c.X <= a.XMax &&
		c.Y >= a.YMin && c.Y <= a.YMax &&
		c.Z >= a.ZMin && c.Z <= a.ZMax
}

// RoomConfig holds the parameters for one coin generation batch.
type RoomConfig struct {
	Room   string   `json:"room" mapstructure:"room"`
	RoomID string   `json:"roomId" mapstructure:"roomId"`
	Coins  int      `json:"coins" mapstructure:"coins"`
	Area   RoomArea `json:"area" mapstructure:"area"`
}

// RoomSummary is a read-only view of a room's metadata.
type RoomSummary struct {
	Room           string    `json:"room"`
	RoomID         string    `json:"roomId,omitempty"`
	CoinsAvailable int       `json:"coinsAvailable"`
	Area           RoomArea  `json:"area"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Expired        bool      `json:"expired"`
}
