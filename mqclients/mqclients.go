package mqclients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrUnknownMQClient = errors.New("no mq client with this name")
	ErrMissingArgument = errors.New("missing mq client argument")
	ErrNotConnected    = errors.New("mq client is not connected")
)

// MQClient publishes gateway events to a message queue.
type MQClient interface {
	String() string
	Channel() string

	Connect(ctx context.Context, clientName string, args map[string]any) error
	Publish(ctx context.Context, channel string, data []byte) error

	IsClosed() bool
	Close()
}

var (
	mqClientsMu sync.RWMutex
	mqClients   = map[string]func() MQClient{}
)

// RegisterMQClient makes a client available to NewMQClient.
func RegisterMQClient(name string, constructor func() MQClient) {
	mqClientsMu.Lock()
	mqClients[strings.ToLower(name)] = constructor
	mqClientsMu.Unlock()
}

// MQClients lists the names of every registered client.
func MQClients() []string {
	mqClientsMu.RLock()
	defer mqClientsMu.RUnlock()

	names := make([]string, 0, len(mqClients))
	for name := range mqClients {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// NewMQClient returns an unconnected client of the given type.
func NewMQClient(mqType string) (MQClient, error) {
	mqClientsMu.RLock()
	constructor, ok := mqClients[strings.ToLower(mqType)]
	mqClientsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMQClient, mqType)
	}

	return constructor(), nil
}

// GetEntry returns the first value whose key matches, ignoring case.
func GetEntry(m map[string]any, key string) any {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}

	return nil
}

// stringArg returns a required argument. Scalars from YAML are formatted as strings.
func stringArg(args map[string]any, key string) (string, error) {
	value := GetEntry(args, key)
	if value == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}

	if s, ok := value.(string); ok {
		if s == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
		}

		return s, nil
	}

	return fmt.Sprint(value), nil
}

func optionalStringArg(args map[string]any, key, fallback string) string {
	value, err := stringArg(args, key)
	if err != nil {
		return fallback
	}

	return value
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	switch value := GetEntry(args, key).(type) {
	case bool:
		return value
	case string:
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}

	return fallback
}

func intArg(args map[string]any, key string, fallback int) (int, error) {
	switch value := GetEntry(args, key).(type) {
	case nil:
		return fallback, nil
	case int:
		return value, nil
	case string:
		if value == "" {
			return fallback, nil
		}

		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s: %w", key, err)
		}

		return parsed, nil
	default:
		return 0, fmt.Errorf("failed to parse %s: unexpected %T", key, value)
	}
}
