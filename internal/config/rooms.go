package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/spf13/viper"
)

// DefaultRoom is the room seeded at startup when engine.defaultRoom is set.
var DefaultRoom = core.RoomConfig{
	Room:   "exampleRoom",
	RoomID: "exampleRoom",
	Coins:  10,
	Area: core.RoomArea{
		XMax: 100, XMin: 0,
		YMax: 100, YMin: 0,
		ZMax: 50, ZMin: 0,
	},
}

// LoadRooms reads room definitions from a JSON file holding a top-level array.
// Entries that fail to decode are skipped; the returned error joins one
// *core.ConfigurationError per problem while the slice carries whatever parsed.
func LoadRooms(path string) ([]core.RoomConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	return ParseRooms(data)
}

// ParseRooms decodes a JSON array of room definitions.
func ParseRooms(data []byte) ([]core.RoomConfig, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("decode rooms: %v", err)}
	}

	rooms := make([]core.RoomConfig, 0, len(raw))
	var errs []error
	for i, r := range raw {
		var rc core.RoomConfig
		if err := json.Unmarshal(r, &rc); err != nil {
			errs = append(errs, &core.ConfigurationError{Reason: fmt.Sprintf("entry %d: %v", i, err)})
			continue
		}
		if rc.Room == "" {
			errs = append(errs, &core.ConfigurationError{Reason: fmt.Sprintf("entry %d: missing room name", i)})
			continue
		}
		rooms = append(rooms, rc)
	}
	return rooms, errors.Join(errs...)
}

// InlineRooms returns room definitions given under the "rooms" config key.
func InlineRooms() ([]core.RoomConfig, error) {
	if !viper.IsSet("rooms") {
		return nil, nil
	}
	var rooms []core.RoomConfig
	if err := viper.UnmarshalKey("rooms", &rooms); err != nil {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("decode inline rooms: %v", err)}
	}
	return rooms, nil
}

// StartupRooms collects the rooms to generate at startup, in order: the default
// room (if enabled), the rooms file, then inline rooms. Errors are collected and
// never prevent the remaining sources from loading.
func StartupRooms() ([]core.RoomConfig, error) {
	var (
		rooms []core.RoomConfig
		errs  []error
	)

	if viper.GetBool("engine.defaultRoom") {
		rooms = append(rooms, DefaultRoom)
	}

	if path := viper.GetString("roomsFile"); path != "" {
		fromFile, err := LoadRooms(path)
		if err != nil {
			errs = append(errs, err)
		}
		rooms = append(rooms, fromFile...)
	}

	inline, err := InlineRooms()
	if err != nil {
		errs = append(errs, err)
	}
	rooms = append(rooms, inline...)

	return rooms, errors.Join(errs...)
}
