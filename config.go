package sandwich

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/gateway"
	"github.com/WelcomerTeam/Sandwich-Gateway/mqclients"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type SandwichConfiguration struct {
	Logging  LoggingConfiguration  `yaml:"logging"`
	REST     RESTConfiguration     `yaml:"rest"`
	Gateway  GatewayConfiguration  `yaml:"gateway"`
	Producer ProducerConfiguration `yaml:"producer"`
	HTTP     HTTPConfiguration     `yaml:"http"`
}

type RESTConfiguration struct {
	BaseURL    string `yaml:"base_url"`
	UserAgent  string `yaml:"user_agent"`
	MaxRetries int    `yaml:"max_retries"`
}

type GatewayConfiguration struct {
	Presence *discord.UpdateStatus `yaml:"presence"`

	Token string `yaml:"token"`

	// ShardIDs is a range string such as "0-3,7". Empty starts every shard.
	ShardIDs   string `yaml:"shard_ids"`
	ShardCount int32  `yaml:"shard_count"`

	IdentifyWindow time.Duration `yaml:"identify_window"`

	Intents        int32 `yaml:"intents"`
	LargeThreshold int32 `yaml:"large_threshold"`
	Compress       bool  `yaml:"compress"`

	// FailEarly refuses to start when fewer identifies remain than shards.
	FailEarly bool `yaml:"fail_early"`
}

type ProducerConfiguration struct {
	Configuration map[string]any `yaml:"configuration"`

	// Type is one of mqclients.MQClients(). Empty disables producing.
	Type       string   `yaml:"type"`
	Channel    string   `yaml:"channel"`
	ClientName string   `yaml:"client_name"`
	Identifier string   `yaml:"identifier"`
	Blacklist  []string `yaml:"blacklist"`
}

type HTTPConfiguration struct {
	Host    string `yaml:"host"`
	Enabled bool   `yaml:"enabled"`
}

// LoadEnv loads a .env file into the environment. A missing file is not an error.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	return nil
}

// LoadConfiguration reads a YAML configuration, expanding ${VAR} references from the environment.
func LoadConfiguration(path string) (configuration SandwichConfiguration, err error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return configuration, fmt.Errorf("%w: %w", ErrReadConfigurationFailure, err)
	}

	return ParseConfiguration(file)
}

// ParseConfiguration parses and validates a YAML configuration.
func ParseConfiguration(data []byte) (configuration SandwichConfiguration, err error) {
	expanded := os.ExpandEnv(string(data))

	if err = yaml.Unmarshal([]byte(expanded), &configuration); err != nil {
		return configuration, fmt.Errorf("%w: %w", ErrLoadConfigurationFailure, err)
	}

	if err = configuration.Validate(); err != nil {
		return configuration, fmt.Errorf("%w: %w", ErrLoadConfigurationFailure, err)
	}

	return configuration, nil
}

func (c *SandwichConfiguration) Validate() error {
	if c.Gateway.Token == "" {
		return ErrConfigurationValidateToken
	}

	if c.Gateway.ShardIDs != "" && c.Gateway.ShardCount <= 0 {
		return ErrConfigurationValidateShards
	}

	if _, err := c.Gateway.shardIDs(); err != nil {
		return err
	}

	if c.Producer.Type != "" {
		if _, err := mqclients.NewMQClient(c.Producer.Type); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigurationValidateProducer, err)
		}
	}

	return nil
}

func (c *GatewayConfiguration) shardIDs() ([]int32, error) {
	if c.ShardIDs == "" {
		return nil, nil
	}

	shardIDs, err := returnRangeInt32(c.ShardIDs, c.ShardCount)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid shard ids %q: %w", ErrConfigurationValidateShards, c.ShardIDs, err)
	}

	if len(shardIDs) == 0 {
		return nil, fmt.Errorf("%w: shard ids %q select no shards", ErrConfigurationValidateShards, c.ShardIDs)
	}

	return shardIDs, nil
}

// ManagerConfiguration converts the gateway section for gateway.NewManager.
func (c *GatewayConfiguration) ManagerConfiguration() (gateway.ManagerConfiguration, error) {
	shardIDs, err := c.shardIDs()
	if err != nil {
		return gateway.ManagerConfiguration{}, err
	}

	return gateway.ManagerConfiguration{
		Presence:       c.Presence,
		Token:          c.Token,
		ShardIDs:       shardIDs,
		ShardCount:     c.ShardCount,
		Intents:        c.Intents,
		LargeThreshold: c.LargeThreshold,
		Compress:       c.Compress,
		IdentifyWindow: c.IdentifyWindow,
	}, nil
}
