// Package parser turns positional transport arguments into typed requests.
// Clients are loose about number encoding: a coin id may arrive as 7, 7.0 or "7".
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/coinhunt/roomengine/pkg/core"
)

var (
	ErrMissingArg = errors.New("missing argument")
	ErrInvalidArg = errors.New("invalid argument")
)

// GrabRequest is a decoded grabCoin(coinId, room).
// CoinID is 0 when the client sent something that is not a whole number;
// the engine reports that as a miss.
type GrabRequest struct {
	Room   string
	CoinID int
}

// NearbyRequest is a decoded nearbyCoins(room, x, y, radius).
type NearbyRequest struct {
	Room   string
	Center core.Coordinates
	Radius float64
}

// parseIntFromFloat parses a string that may be an integer ("32") or float ("32.00") into int64.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// scalar returns the text of a JSON string or number.
func scalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrMissingArg
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArg, err)
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: %s is not a string or number", ErrInvalidArg, raw)
	}
	return n.String(), nil
}

func arg(args []json.RawMessage, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: %s", ErrMissingArg, name)
	}
	s, err := scalar(args[i])
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

// Room reads a room name at position i. Numeric names are accepted as their text.
func Room(args []json.RawMessage, i int) (string, error) {
	s, err := arg(args, i, "room")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: room", ErrMissingArg)
	}
	return s, nil
}

// CoinID reads a coin id. Only a JSON number holding a positive whole value
// matches; strings such as "7" never do.
func CoinID(raw json.RawMessage) (id int, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	s, err := scalar(raw)
	if err != nil {
		return 0, false
	}
	v, err := parseIntFromFloat(s)
	if err != nil || v <= 0 || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// ParseGrab decodes grabCoin(coinId, room). Only a missing room is an error.
func ParseGrab(args []json.RawMessage) (GrabRequest, error) {
	room, err := Room(args, 1)
	if err != nil {
		return GrabRequest{}, err
	}
	req := GrabRequest{Room: room}
	if len(args) > 0 {
		req.CoinID, _ = CoinID(args[0])
	}
	return req, nil
}

func number(args []json.RawMessage, i int, name string) (float64, error) {
	s, err := arg(args, i, name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidArg, name, s)
	}
	return f, nil
}

// ParseNearby decodes nearbyCoins(room, x, y, radius). Fractional x and y
// are rounded to the nearest world unit.
func ParseNearby(args []json.RawMessage) (NearbyRequest, error) {
	room, err := Room(args, 0)
	if err != nil {
		return NearbyRequest{}, err
	}
	x, err := number(args, 1, "x")
	if err != nil {
		return NearbyRequest{}, err
	}
	y, err := number(args, 2, "y")
	if err != nil {
		return NearbyRequest{}, err
	}
	radius, err := number(args, 3, "radius")
	if err != nil {
		return NearbyRequest{}, err
	}
	if radius < 0 {
		return NearbyRequest{}, fmt.Errorf("%w: radius=%g", ErrInvalidArg, radius)
	}
	return NearbyRequest{
		Room:   room,
		Center: core.Coordinates{X: int(math.Round(x)), Y: int(math.Round(y))},
		Radius: radius,
	}, nil
}

// Query decodes the x, y and radius query values of the HTTP nearby endpoint
// with the same rules as ParseNearby.
func Query(room, x, y, radius string) (NearbyRequest, error) {
	args := make([]json.RawMessage, 0, 4)
	for _, v := range []string{room, x, y, radius} {
		raw, err := json.Marshal(v)
		if err != nil {
			return NearbyRequest{}, err
		}
		args = append(args, raw)
	}
	return ParseNearby(args)
}
