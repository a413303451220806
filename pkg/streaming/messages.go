package streaming

import (
	"encoding/json"

	"github.com/coinhunt/roomengine/pkg/core"
)

// Client -> server event names.
const (
	TypeGetCoins    = "getCoins"
	TypeGrabCoin    = "grabCoin"
	TypeJoinRoom    = "joinRoom"
	TypeLeaveRoom   = "leaveRoom"
	TypeNearbyCoins = "nearbyCoins"
)

// Server -> client event names.
const (
	TypeCoins       = "coins"
	TypeCoinGrabbed = "coinGrabbed"
	TypeJoined      = "joined"
	TypeError       = "error"
)

// Envelope wraps all messages sent over the WebSocket.
// Args carries positional event arguments, e.g. grabCoin -> [coinId, room].
type Envelope struct {
	Type string            `json:"type"`
	Args []json.RawMessage `json:"args,omitempty"`
}

// CoinsPayload is the reply to getCoins and nearbyCoins.
type CoinsPayload struct {
	Room  string      `json:"room"`
	Coins []core.Coin `json:"coins"`
}

// JoinedPayload acknowledges a room subscription.
type JoinedPayload struct {
	Room string `json:"room"`
}

// ErrorPayload reports a malformed request back to the sender.
type ErrorPayload struct {
	For     string `json:"for"`
	Message string `json:"message"`
}

// NewEnvelope encodes each arg as JSON and wraps them under msgType.
func NewEnvelope(msgType string, args ...any) (Envelope, error) {
	env := Envelope{Type: msgType, Args: make([]json.RawMessage, 0, len(args))}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return Envelope{}, err
		}
		env.Args = append(env.Args, raw)
	}
	return env, nil
}

// Marshal encodes an envelope for msgType and args.
func Marshal(msgType string, args ...any) ([]byte, error) {
	env, err := NewEnvelope(msgType, args...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
