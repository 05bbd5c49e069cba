package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrShardCountRequired    = errors.New("shard ids were given without a shard count")
	ErrShardIDOutOfRange     = errors.New("shard id is outside the shard count")
	ErrSessionLimitExhausted = errors.New("the session limit has been reached")
	ErrManagerAlreadyStarted = errors.New("manager has already been started")
	ErrManagerMissingToken   = errors.New("manager missing bot token")
	ErrManagerMissingShards  = errors.New("manager has no shards to start")
)

var (
	ErrShardNotConnected      = errors.New("shard has no websocket connection")
	ErrShardAlreadyConnecting = errors.New("shard connection loop is already running")
	ErrShardClosed            = errors.New("shard has been closed")
	ErrInvalidTransition      = errors.New("invalid shard state transition")
	ErrDialFailed             = errors.New("failed to dial gateway")

	ErrShardInvalidHeartbeatInterval = errors.New("shard invalid heartbeat interval")

	// ErrReconnect is used to distinguish if the shard simply wants to reconnect.
	ErrReconnect = errors.New("reconnect is required")

	// ErrGatewayCritical is matched by every CriticalError.
	ErrGatewayCritical = errors.New("gateway closed with a critical code")
)

// CriticalError is returned from a shard's connection loop when the gateway closes
// with a code that reconnecting cannot fix, such as a bad token or disallowed intents.
type CriticalError struct {
	Err  error
	Code int
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("gateway closed with critical code %d", e.Code)
}

func (e *CriticalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGatewayCritical}
	}

	return []error{ErrGatewayCritical, e.Err}
}
