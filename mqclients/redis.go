package mqclients

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

func init() {
	RegisterMQClient("redis", func() MQClient { return &RedisMQClient{} })
}

// RedisMQClient publishes with PUBLISH on a redis connection.
type RedisMQClient struct {
	redisClient *redis.Client

	channel string
}

func (redisMQ *RedisMQClient) String() string {
	return "redis"
}

func (redisMQ *RedisMQClient) Channel() string {
	return redisMQ.channel
}

func (redisMQ *RedisMQClient) Connect(ctx context.Context, clientName string, args map[string]any) error {
	address, err := stringArg(args, "Address")
	if err != nil {
		return fmt.Errorf("redisMQ connect: %w", err)
	}

	db, err := intArg(args, "DB", 0)
	if err != nil {
		return fmt.Errorf("redisMQ connect: %w", err)
	}

	redisMQ.channel = optionalStringArg(args, "Channel", "")

	redisMQ.redisClient = redis.NewClient(&redis.Options{
		Addr:     address,
		Password: optionalStringArg(args, "Password", ""),
		DB:       db,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			return cn.ClientSetName(ctx, clientName).Err()
		},
	})

	if err = redisMQ.redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisMQ connect ping: %w", err)
	}

	return nil
}

func (redisMQ *RedisMQClient) Publish(ctx context.Context, channel string, data []byte) error {
	if redisMQ.redisClient == nil {
		return ErrNotConnected
	}

	return redisMQ.redisClient.Publish(ctx, channel, data).Err()
}

func (redisMQ *RedisMQClient) IsClosed() bool {
	return redisMQ.redisClient == nil
}

func (redisMQ *RedisMQClient) Close() {
	if redisMQ.redisClient != nil {
		_ = redisMQ.redisClient.Close()
		redisMQ.redisClient = nil
	}
}
