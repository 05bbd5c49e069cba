package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
)

// GatewayHandler handles a gateway op after hooks have been dispatched.
type GatewayHandler func(ctx context.Context, shard *Shard, msg discord.GatewayPayload) error

var gatewayHandlers = make(map[discord.GatewayOp]GatewayHandler)

// RegisterGatewayEvent registers the handler for a gateway op, replacing any existing one.
func RegisterGatewayEvent(op discord.GatewayOp, handler GatewayHandler) {
	gatewayHandlers[op] = handler
}

func gatewayOpDispatch(ctx context.Context, shard *Shard, msg discord.GatewayPayload) error {
	switch msg.Type {
	case "READY":
		var ready discord.Ready

		if err := sandwichjson.Unmarshal(msg.Data, &ready); err != nil {
			return fmt.Errorf("failed to unmarshal ready: %w", err)
		}

		shard.sessionID.Store(ready.SessionID)
		shard.resumeGatewayURL.Store(ready.ResumeGatewayURL)

		shard.transition(TransitionReady)
		shard.ready.Set()

		shard.Logger.Info().Str("sessionId", ready.SessionID).Msg("Shard is ready")
	case "RESUMED":
		shard.transition(TransitionReady)
		shard.ready.Set()

		shard.Logger.Info().Int64("sequence", shard.sequence.Load()).Msg("Shard has resumed")
	}

	return nil
}

func gatewayOpHeartbeat(ctx context.Context, shard *Shard, msg discord.GatewayPayload) error {
	if err := shard.sendHeartbeat(ctx); err != nil {
		return fmt.Errorf("failed to send requested heartbeat: %w", err)
	}

	return nil
}

func gatewayOpReconnect(ctx context.Context, shard *Shard, msg discord.GatewayPayload) error {
	shard.Logger.Info().Msg("Reconnecting in response to gateway")
	shard.closeForReconnect(WebsocketReconnectCloseCode)

	return ErrReconnect
}

func gatewayOpInvalidSession(ctx context.Context, shard *Shard, msg discord.GatewayPayload) error {
	var resumable bool

	if len(msg.Data) > 0 {
		if err := sandwichjson.Unmarshal(msg.Data, &resumable); err != nil {
			shard.Logger.Debug().Err(err).Msg("Failed to unmarshal invalid session")
		}
	}

	shard.Logger.Warn().Bool("resumable", resumable).Msg("Received invalid session from gateway")

	if !resumable {
		shard.clearSession()
	}

	shard.closeForReconnect(WebsocketReconnectCloseCode)

	return ErrReconnect
}

func gatewayOpHello(ctx context.Context, shard *Shard, msg discord.GatewayPayload) error {
	var hello discord.Hello

	if err := sandwichjson.Unmarshal(msg.Data, &hello); err != nil {
		return fmt.Errorf("failed to unmarshal hello: %w", err)
	}

	if hello.HeartbeatInterval <= 0 {
		shard.closeForReconnect(WebsocketReconnectCloseCode)

		return fmt.Errorf("%w: %w", ErrReconnect, ErrShardInvalidHeartbeatInterval)
	}

	now := time.Now().UTC()
	shard.lastHeartbeatSent.Store(now)
	shard.lastHeartbeatAck.Store(now)

	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	shard.Logger.Debug().Dur("interval", interval).Msg("Received HELLO event")

	shard.startPacemaker(interval)

	if shard.resuming.Load() {
		return nil
	}

	return shard.identify(ctx)
}

func gatewayOpHeartbeatACK(ctx context.Context, shard *Shard, msg discord.GatewayPayload) error {
	now := time.Now().UTC()
	shard.lastHeartbeatAck.Store(now)

	latency := now.Sub(shard.lastHeartbeatSent.Load())
	shard.latency.Store(latency)

	gatewayLatency.WithLabelValues(shardLabel(shard.ID)).Set(float64(latency.Milliseconds()))

	shard.Logger.Trace().Dur("latency", latency).Msg("Received heartbeat ACK")

	return nil
}

func init() {
	RegisterGatewayEvent(discord.GatewayOpDispatch, gatewayOpDispatch)
	RegisterGatewayEvent(discord.GatewayOpHeartbeat, gatewayOpHeartbeat)
	RegisterGatewayEvent(discord.GatewayOpReconnect, gatewayOpReconnect)
	RegisterGatewayEvent(discord.GatewayOpInvalidSession, gatewayOpInvalidSession)
	RegisterGatewayEvent(discord.GatewayOpHello, gatewayOpHello)
	RegisterGatewayEvent(discord.GatewayOpHeartbeatACK, gatewayOpHeartbeatACK)
}
