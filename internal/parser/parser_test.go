package parser

import (
	"encoding/json"
	"testing"

	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raws(vals ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestParseIntFromFloat(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"32", 32, false},
		{"32.00", 32, false},
		{"-4", -4, false},
		{"1e3", 1000, false},
		{"32.5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseIntFromFloat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoinID(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   int
		wantOK bool
	}{
		{"integer", `7`, 7, true},
		{"whole float", `7.0`, 7, true},
		{"padded number", ` 12 `, 12, true},
		{"numeric string", `"7"`, 0, false},
		{"float string", `"7.0"`, 0, false},
		{"fraction", `7.5`, 0, false},
		{"zero", `0`, 0, false},
		{"negative", `-3`, 0, false},
		{"word", `"seven"`, 0, false},
		{"null", `null`, 0, false},
		{"object", `{"id":7}`, 0, false},
		{"too large", `1e20`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CoinID(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoom(t *testing.T) {
	room, err := Room(raws(`"lobby"`), 0)
	require.NoError(t, err)
	assert.Equal(t, "lobby", room)

	room, err = Room(raws(`42`), 0)
	require.NoError(t, err)
	assert.Equal(t, "42", room)

	_, err = Room(raws(), 0)
	assert.ErrorIs(t, err, ErrMissingArg)

	_, err = Room(raws(`""`), 0)
	assert.ErrorIs(t, err, ErrMissingArg)

	_, err = Room(raws(`[1]`), 0)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestParseGrab(t *testing.T) {
	req, err := ParseGrab(raws(`3`, `"lobby"`))
	require.NoError(t, err)
	assert.Equal(t, GrabRequest{Room: "lobby", CoinID: 3}, req)

	req, err = ParseGrab(raws(`3.0`, `"lobby"`))
	require.NoError(t, err)
	assert.Equal(t, 3, req.CoinID)

	// A string id never matches a coin.
	req, err = ParseGrab(raws(`"3"`, `"lobby"`))
	require.NoError(t, err)
	assert.Zero(t, req.CoinID)

	// A malformed id still yields a request; the engine treats id 0 as a miss.
	req, err = ParseGrab(raws(`"abc"`, `"lobby"`))
	require.NoError(t, err)
	assert.Equal(t, GrabRequest{Room: "lobby"}, req)

	_, err = ParseGrab(raws(`3`))
	assert.ErrorIs(t, err, ErrMissingArg)
}

func TestParseNearby(t *testing.T) {
	req, err := ParseNearby(raws(`"lobby"`, `10`, `"20.6"`, `5.5`))
	require.NoError(t, err)
	assert.Equal(t, NearbyRequest{
		Room:   "lobby",
		Center: core.Coordinates{X: 10, Y: 21},
		Radius: 5.5,
	}, req)

	_, err = ParseNearby(raws(`"lobby"`, `10`, `20`))
	assert.ErrorIs(t, err, ErrMissingArg)

	_, err = ParseNearby(raws(`"lobby"`, `10`, `20`, `-1`))
	assert.ErrorIs(t, err, ErrInvalidArg)

	_, err = ParseNearby(raws(`"lobby"`, `"ten"`, `20`, `1`))
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestQuery(t *testing.T) {
	req, err := Query("lobby", "1", "2", "3")
	require.NoError(t, err)
	assert.Equal(t, NearbyRequest{Room: "lobby", Center: core.Coordinates{X: 1, Y: 2}, Radius: 3}, req)

	_, err = Query("lobby", "", "2", "3")
	assert.ErrorIs(t, err, ErrInvalidArg)
}
