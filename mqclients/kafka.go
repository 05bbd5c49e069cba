package mqclients

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

func init() {
	RegisterMQClient("kafka", func() MQClient { return &KafkaMQClient{} })
}

// KafkaMQClient writes each event as a message on the channel's topic.
type KafkaMQClient struct {
	KafkaClient *kafka.Writer

	channel string
}

func parseKafkaBalancer(balancer string) kafka.Balancer {
	switch strings.ToLower(balancer) {
	case "crc32":
		return &kafka.CRC32Balancer{}
	case "hash":
		return &kafka.Hash{}
	case "murmur2":
		return &kafka.Murmur2Balancer{}
	case "roundrobin":
		return &kafka.RoundRobin{}
	default:
		return &kafka.LeastBytes{}
	}
}

func (kafkaMQ *KafkaMQClient) String() string {
	return "kafka"
}

func (kafkaMQ *KafkaMQClient) Channel() string {
	return kafkaMQ.channel
}

// Connect configures the writer. kafka-go dials lazily on the first write.
func (kafkaMQ *KafkaMQClient) Connect(ctx context.Context, clientName string, args map[string]any) error {
	address, err := stringArg(args, "Address")
	if err != nil {
		return fmt.Errorf("kafkaMQ connect: %w", err)
	}

	kafkaMQ.channel = optionalStringArg(args, "Channel", "")

	kafkaMQ.KafkaClient = &kafka.Writer{
		Addr:      kafka.TCP(strings.Split(address, ",")...),
		Balancer:  parseKafkaBalancer(optionalStringArg(args, "Balancer", "")),
		Async:     boolArg(args, "Async", false),
		Transport: &kafka.Transport{ClientID: clientName},
	}

	return nil
}

func (kafkaMQ *KafkaMQClient) Publish(ctx context.Context, channel string, data []byte) error {
	if kafkaMQ.KafkaClient == nil {
		return ErrNotConnected
	}

	return kafkaMQ.KafkaClient.WriteMessages(ctx, kafka.Message{
		Topic: channel,
		Value: data,
	})
}

func (kafkaMQ *KafkaMQClient) IsClosed() bool {
	return kafkaMQ.KafkaClient == nil
}

func (kafkaMQ *KafkaMQClient) Close() {
	if kafkaMQ.KafkaClient != nil {
		_ = kafkaMQ.KafkaClient.Close()
		kafkaMQ.KafkaClient = nil
	}
}
