package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roomsJSON = `[
	{"room": "lobby", "roomId": "l1", "coins": 5, "area": {"xmax": 10, "xmin": 0, "ymax": 10, "ymin": 0, "zmax": 10, "zmin": 0}},
	{"room": "arena", "roomId": "a1", "coins": 0, "area": {"xmax": 1, "xmin": 0, "ymax": 1, "ymin": 0, "zmax": 1, "zmin": 0}}
]`

func TestLoadRooms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	require.NoError(t, os.WriteFile(path, []byte(roomsJSON), 0644))

	rooms, err := LoadRooms(path)
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	assert.Equal(t, "lobby", rooms[0].Room)
	assert.Equal(t, "l1", rooms[0].RoomID)
	assert.Equal(t, 5, rooms[0].Coins)
	assert.Equal(t, 10, rooms[0].Area.XMax)
	assert.Equal(t, "arena", rooms[1].Room)
	assert.Equal(t, 0, rooms[1].Coins)
}

func TestLoadRooms_MissingFile(t *testing.T) {
	rooms, err := LoadRooms(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfiguration))
	assert.Empty(t, rooms)
}

func TestParseRooms_Malformed(t *testing.T) {
	rooms, err := ParseRooms([]byte(`{"room": "not an array"`))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Empty(t, rooms)
}

func TestParseRooms_SkipsBadEntries(t *testing.T) {
	rooms, err := ParseRooms([]byte(`[
		{"room": "good", "coins": 1},
		{"room": "bad", "coins": "many"},
		{"coins": 2}
	]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	require.Len(t, rooms, 1)
	assert.Equal(t, "good", rooms[0].Room)
}

func TestStartupRooms(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.json")
	require.NoError(t, os.WriteFile(path, []byte(roomsJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{
		"roomsFile": "`+filepath.ToSlash(path)+`",
		"rooms": [ {"room": "inline", "roomId": "i1", "coins": 2, "area": {"xmax": 5, "ymax": 5, "zmax": 5}} ]
	}`), 0644))
	require.NoError(t, Load(dir))

	rooms, err := StartupRooms()
	require.NoError(t, err)

	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		names = append(names, r.Room)
	}
	assert.Equal(t, []string{"exampleRoom", "lobby", "arena", "inline"}, names)
	assert.Equal(t, "i1", rooms[3].RoomID)
	assert.Equal(t, 5, rooms[3].Area.ZMax)
}

func TestStartupRooms_UnreadableFileKeepsDefault(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("engine.defaultRoom", true)
	viper.Set("roomsFile", filepath.Join(t.TempDir(), "missing.json"))

	rooms, err := StartupRooms()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	require.Len(t, rooms, 1)
	assert.Equal(t, DefaultRoom, rooms[0])
}
