package influx

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/coinhunt/roomengine/pkg/core"
)

// GrabPoint converts a committed grab into a point stamped with its commit time.
func GrabPoint(ev core.GrabEvent) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		MeasurementGrab,
		map[string]string{"room": ev.Coin.Room},
		map[string]any{
			"coin_id": ev.Coin.ID,
			"seq":     int64(ev.Seq),
			"x":       ev.Coin.Position.X,
			"y":       ev.Coin.Position.Y,
			"z":       ev.Coin.Position.Z,
		},
		ev.At,
	)
}

// GenerationPoint describes a freshly generated room.
func GenerationPoint(s core.RoomSummary) *influxdb2_write.Point {
	tags := map[string]string{"room": s.Room}
	if s.RoomID != "" {
		tags["room_id"] = s.RoomID
	}
	return influxdb2_write.NewPoint(
		MeasurementGeneration,
		tags,
		map[string]any{
			"coins":   s.CoinsAvailable,
			"ttl_sec": s.ExpiresAt.Sub(s.CreatedAt).Seconds(),
		},
		s.CreatedAt,
	)
}

// RoomStatusPoint samples one room.
func RoomStatusPoint(at time.Time, s core.RoomSummary) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		MeasurementRoomStatus,
		map[string]string{"room": s.Room},
		map[string]any{
			"coins_available": s.CoinsAvailable,
			"expired":         s.Expired,
		},
		at,
	)
}

// EngineStatusPoint samples the engine as a whole.
func EngineStatusPoint(at time.Time, rooms, outbox, debt, sessions int) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		MeasurementEngine,
		map[string]string{"component": "engine"},
		map[string]any{
			"rooms":        rooms,
			"outbox":       outbox,
			"cleanup_debt": debt,
			"sessions":     sessions,
		},
		at,
	)
}
