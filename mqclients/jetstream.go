package mqclients

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/atomic"
)

func init() {
	RegisterMQClient("jetstream", func() MQClient { return &JetStreamMQClient{} })
}

// JetStreamMQClient publishes to <channel>.<event> subjects of a memory-backed stream.
type JetStreamMQClient struct {
	NatsClient      *nats.Conn
	JetStreamClient jetstream.JetStream
	JetStreamStream jetstream.Stream

	connected atomic.Bool

	channel string
}

func (jetstreamMQ *JetStreamMQClient) String() string {
	return "jetstream"
}

func (jetstreamMQ *JetStreamMQClient) Channel() string {
	return jetstreamMQ.channel
}

func (jetstreamMQ *JetStreamMQClient) Connect(ctx context.Context, clientName string, args map[string]any) error {
	address, err := stringArg(args, "Address")
	if err != nil {
		return fmt.Errorf("jetstreamMQ connect: %w", err)
	}

	if jetstreamMQ.channel, err = stringArg(args, "Channel"); err != nil {
		return fmt.Errorf("jetstreamMQ connect: %w", err)
	}

	jetstreamMQ.NatsClient, err = nats.Connect(address, nats.Name(clientName))
	if err != nil {
		return fmt.Errorf("jetstreamMQ connect nats: %w", err)
	}

	jetstreamMQ.JetStreamClient, err = jetstream.New(jetstreamMQ.NatsClient)
	if err != nil {
		return fmt.Errorf("jetstreamMQ new: %w", err)
	}

	streamConfig, err := jetstreamStreamConfig(jetstreamMQ.channel, args)
	if err != nil {
		return fmt.Errorf("jetstreamMQ connect: %w", err)
	}

	jetstreamMQ.JetStreamStream, err = jetstreamMQ.JetStreamClient.CreateOrUpdateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("jetstreamMQ create stream: %w", err)
	}

	jetstreamMQ.connected.Store(true)

	return nil
}

// jetstreamStreamConfig builds the stream for channel. Retention is "workqueue"
// (default), "interest" or "limits". MaxAge is a duration string, 5m by default.
func jetstreamStreamConfig(channel string, args map[string]any) (jetstream.StreamConfig, error) {
	var retention jetstream.RetentionPolicy

	switch strings.ToLower(optionalStringArg(args, "Retention", "workqueue")) {
	case "workqueue":
		retention = jetstream.WorkQueuePolicy
	case "interest":
		retention = jetstream.InterestPolicy
	case "limits":
		retention = jetstream.LimitsPolicy
	default:
		return jetstream.StreamConfig{}, fmt.Errorf("unknown retention policy %q", GetEntry(args, "Retention"))
	}

	maxAge, err := time.ParseDuration(optionalStringArg(args, "MaxAge", "5m"))
	if err != nil {
		return jetstream.StreamConfig{}, fmt.Errorf("invalid MaxAge: %w", err)
	}

	return jetstream.StreamConfig{
		Name:              channel,
		Subjects:          []string{channel + ".*"},
		Retention:         retention,
		Discard:           jetstream.DiscardOld,
		MaxAge:            maxAge,
		Storage:           jetstream.MemoryStorage,
		MaxMsgsPerSubject: 1_000_000,
		MaxMsgSize:        math.MaxInt32,
	}, nil
}

func (jetstreamMQ *JetStreamMQClient) Publish(ctx context.Context, channel string, data []byte) error {
	if !jetstreamMQ.connected.Load() {
		return ErrNotConnected
	}

	_, err := jetstreamMQ.JetStreamClient.PublishAsync(jetstreamMQ.channel+"."+channel, data)

	return err
}

func (jetstreamMQ *JetStreamMQClient) IsClosed() bool {
	return !jetstreamMQ.connected.Load()
}

func (jetstreamMQ *JetStreamMQClient) Close() {
	if !jetstreamMQ.connected.Swap(false) {
		return
	}

	if jetstreamMQ.NatsClient != nil {
		_ = jetstreamMQ.NatsClient.Drain()
	}
}
