// pkg/core/coin.go
package core

import "time"

// Coordinates is a position in the game's 3D world space.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Coin is a collectible entity. ID is unique within Room only.
type Coin struct {
	Position Coordinates `json:"position"`
	Room     string      `json:"room"`
	ID       int         `json:"id"`
}

// GrabEvent is emitted once per committed grab. Seq increases in commit order,
// so events of one room sort the same way their grabs were committed.
type GrabEvent struct {
	Coin Coin      `json:"coin"`
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`
}
