package sandwich

import (
	"context"
	"fmt"
	"strings"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/gateway"
	"github.com/WelcomerTeam/Sandwich-Gateway/mqclients"
	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
)

// ProducedPayload is a dispatch event as it is published to the producer.
type ProducedPayload struct {
	discord.GatewayPayload

	Metadata ProducedMetadata `json:"__metadata"`
}

type ProducedMetadata struct {
	Identifier string `json:"i"`

	// Shard is [shard id, shard count].
	Shard [2]int32 `json:"s"`
}

// Publisher is the part of mqclients.MQClient the producer hook uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte) error
}

var _ Publisher = (mqclients.MQClient)(nil)

// NewProducerHook returns a wildcard dispatch hook that publishes every incoming
// dispatch event to channel. Event names in blacklist are skipped.
func NewProducerHook(client Publisher, channel, identifier string, blacklist []string) gateway.DispatchHook {
	blacklisted := make(map[string]struct{}, len(blacklist))

	for _, name := range blacklist {
		blacklisted[strings.ToUpper(name)] = struct{}{}
	}

	return func(ctx context.Context, event *gateway.GatewayEvent) error {
		if event.Direction != gateway.DirectionIncoming || event.Op != discord.GatewayOpDispatch {
			return nil
		}

		if _, ok := blacklisted[event.DispatchName()]; ok {
			return nil
		}

		payload := ProducedPayload{
			GatewayPayload: discord.GatewayPayload{
				Type:     event.Type,
				Data:     event.Data,
				Sequence: event.Sequence,
				Op:       event.Op,
			},
			Metadata: ProducedMetadata{
				Identifier: identifier,
			},
		}

		if event.Shard != nil {
			payload.Metadata.Shard = [2]int32{event.Shard.ID, event.Shard.Count}
		}

		data, err := sandwichjson.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal produced payload: %w", err)
		}

		if err = client.Publish(ctx, channel, data); err != nil {
			return fmt.Errorf("failed to publish %s: %w", event.Type, err)
		}

		return nil
	}
}
