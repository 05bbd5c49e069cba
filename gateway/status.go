package gateway

import "fmt"

// ShardState is the protocol state of a shard's connection.
type ShardState int32

const (
	ShardStateDisconnected ShardState = iota
	ShardStateConnecting
	ShardStateAwaitingHello
	ShardStateIdentifying
	ShardStateResuming
	ShardStateConnected
	ShardStateReconnecting
	ShardStateClosing
)

func (state ShardState) String() string {
	if state < 0 || int(state) >= len(shardStateNames) {
		return fmt.Sprintf("ShardState(%d)", int32(state))
	}

	return shardStateNames[state]
}

var shardStateNames = []string{
	"Disconnected",
	"Connecting",
	"AwaitingHello",
	"Identifying",
	"Resuming",
	"Connected",
	"Reconnecting",
	"Closing",
}

// ShardTransition is an event that moves a shard between states.
type ShardTransition uint8

const (
	// TransitionDial starts opening a socket.
	TransitionDial ShardTransition = iota
	// TransitionSocketOpen is applied once the socket is open.
	TransitionSocketOpen
	// TransitionIdentify is applied when an identify is sent.
	TransitionIdentify
	// TransitionResume is applied when a resume is sent.
	TransitionResume
	// TransitionReady is applied on READY or RESUMED.
	TransitionReady
	// TransitionDisconnect is applied when the socket is lost and a reconnect will follow.
	TransitionDisconnect
	// TransitionClose is applied when the shard is being shut down.
	TransitionClose
	// TransitionClosed is applied when nothing is running anymore.
	TransitionClosed
)

func (transition ShardTransition) String() string {
	if int(transition) >= len(shardTransitionNames) {
		return fmt.Sprintf("ShardTransition(%d)", uint8(transition))
	}

	return shardTransitionNames[transition]
}

var shardTransitionNames = []string{
	"Dial",
	"SocketOpen",
	"Identify",
	"Resume",
	"Ready",
	"Disconnect",
	"Close",
	"Closed",
}

// NextShardState returns the state reached by applying transition to from.
func NextShardState(from ShardState, transition ShardTransition) (ShardState, error) {
	switch transition {
	case TransitionDial:
		if from == ShardStateDisconnected || from == ShardStateReconnecting {
			return ShardStateConnecting, nil
		}
	case TransitionSocketOpen:
		if from == ShardStateConnecting {
			return ShardStateAwaitingHello, nil
		}
	case TransitionIdentify:
		if from == ShardStateAwaitingHello {
			return ShardStateIdentifying, nil
		}
	case TransitionResume:
		if from == ShardStateAwaitingHello {
			return ShardStateResuming, nil
		}
	case TransitionReady:
		if from == ShardStateIdentifying || from == ShardStateResuming {
			return ShardStateConnected, nil
		}
	case TransitionDisconnect:
		switch from {
		case ShardStateConnecting, ShardStateAwaitingHello, ShardStateIdentifying,
			ShardStateResuming, ShardStateConnected:
			return ShardStateReconnecting, nil
		}
	case TransitionClose:
		if from != ShardStateClosing {
			return ShardStateClosing, nil
		}
	case TransitionClosed:
		if from != ShardStateDisconnected {
			return ShardStateDisconnected, nil
		}
	}

	return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, transition, from)
}
