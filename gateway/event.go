package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
)

// Direction is whether a payload was received from or sent to the gateway.
type Direction uint8

const (
	DirectionIncoming Direction = iota
	DirectionOutgoing
)

func (d Direction) String() string {
	if d == DirectionOutgoing {
		return "outgoing"
	}

	return "incoming"
}

// GatewayEvent is a single payload as seen on a shard. Hooks share the same
// event and must not modify it.
type GatewayEvent struct {
	Shard *Shard

	Sequence *int64
	Type     string
	Data     json.RawMessage

	// Raw is the full frame after decompression.
	Raw []byte

	ReceivedAt time.Time

	Op        discord.GatewayOp
	Direction Direction
}

// DispatchName is the key hooks are registered under: the uppercased event
// type, or OP_<op> for payloads without a type.
func (e *GatewayEvent) DispatchName() string {
	if e.Type != "" {
		return strings.ToUpper(e.Type)
	}

	return "OP_" + e.Op.String()
}
