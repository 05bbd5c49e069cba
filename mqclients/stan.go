package mqclients

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/stan.go"
)

func init() {
	RegisterMQClient("stan", func() MQClient { return &StanMQClient{} })
}

// StanMQClient publishes to a NATS Streaming cluster.
type StanMQClient struct {
	NatsClient *nats.Conn
	StanClient stan.Conn

	channel string
	cluster string
	async   bool
}

func (stanMQ *StanMQClient) String() string {
	return "stan"
}

func (stanMQ *StanMQClient) Channel() string {
	return stanMQ.channel
}

func (stanMQ *StanMQClient) Cluster() string {
	return stanMQ.cluster
}

func (stanMQ *StanMQClient) Connect(ctx context.Context, clientName string, args map[string]any) error {
	address, err := stringArg(args, "Address")
	if err != nil {
		return fmt.Errorf("stanMQ connect: %w", err)
	}

	if stanMQ.cluster, err = stringArg(args, "Cluster"); err != nil {
		return fmt.Errorf("stanMQ connect: %w", err)
	}

	if stanMQ.channel, err = stringArg(args, "Channel"); err != nil {
		return fmt.Errorf("stanMQ connect: %w", err)
	}

	stanMQ.async = boolArg(args, "Async", false)

	var option stan.Option

	if boolArg(args, "UseNATSConnection", true) {
		stanMQ.NatsClient, err = nats.Connect(address, nats.Name(clientName))
		if err != nil {
			return fmt.Errorf("stanMQ connect nats: %w", err)
		}

		option = stan.NatsConn(stanMQ.NatsClient)
	} else {
		option = stan.NatsURL(address)
	}

	stanMQ.StanClient, err = stan.Connect(stanMQ.cluster, clientName, option)
	if err != nil {
		if stanMQ.NatsClient != nil {
			stanMQ.NatsClient.Close()
			stanMQ.NatsClient = nil
		}

		return fmt.Errorf("stanMQ connect stan: %w", err)
	}

	return nil
}

func (stanMQ *StanMQClient) Publish(ctx context.Context, channel string, data []byte) error {
	if stanMQ.StanClient == nil {
		return ErrNotConnected
	}

	if stanMQ.async {
		_, err := stanMQ.StanClient.PublishAsync(channel, data, nil)

		return err
	}

	return stanMQ.StanClient.Publish(channel, data)
}

func (stanMQ *StanMQClient) IsClosed() bool {
	return stanMQ.StanClient == nil
}

func (stanMQ *StanMQClient) Close() {
	if stanMQ.StanClient != nil {
		_ = stanMQ.StanClient.Close()
		stanMQ.StanClient = nil
	}

	if stanMQ.NatsClient != nil {
		stanMQ.NatsClient.Close()
		stanMQ.NatsClient = nil
	}
}
