package sandwich

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfiguration = `
logging:
  level: debug
  console_logging: true
rest:
  max_retries: 5
gateway:
  token: ${SANDWICH_TEST_TOKEN}
  shard_ids: "0-2,7"
  shard_count: 8
  intents: 513
  identify_window: 6s
  fail_early: true
  presence:
    status: online
producer:
  type: redis
  channel: sandwich
  identifier: welcomer
  blacklist: [TYPING_START]
  configuration:
    Address: localhost:6379
http:
  enabled: true
  host: :5469
`

func TestParseConfiguration(t *testing.T) {
	t.Setenv("SANDWICH_TEST_TOKEN", "secret-token")

	configuration, err := ParseConfiguration([]byte(testConfiguration))
	require.NoError(t, err)

	assert.Equal(t, "secret-token", configuration.Gateway.Token)
	assert.Equal(t, int32(8), configuration.Gateway.ShardCount)
	assert.Equal(t, int32(513), configuration.Gateway.Intents)
	assert.Equal(t, 6*time.Second, configuration.Gateway.IdentifyWindow)
	assert.True(t, configuration.Gateway.FailEarly)
	require.NotNil(t, configuration.Gateway.Presence)
	assert.Equal(t, 5, configuration.REST.MaxRetries)
	assert.Equal(t, "redis", configuration.Producer.Type)
	assert.Equal(t, []string{"TYPING_START"}, configuration.Producer.Blacklist)
	assert.Equal(t, "localhost:6379", configuration.Producer.Configuration["Address"])
	assert.True(t, configuration.HTTP.Enabled)

	managerConfiguration, err := configuration.Gateway.ManagerConfiguration()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 7}, managerConfiguration.ShardIDs)
	assert.Equal(t, int32(8), managerConfiguration.ShardCount)
	assert.Equal(t, "secret-token", managerConfiguration.Token)
}

func TestParseConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  error
	}{
		{name: "invalid yaml", data: "gateway: [", err: ErrLoadConfigurationFailure},
		{name: "missing token", data: "gateway:\n  intents: 1\n", err: ErrConfigurationValidateToken},
		{name: "shard ids without count", data: "gateway:\n  token: t\n  shard_ids: 0-3\n", err: ErrConfigurationValidateShards},
		{name: "unknown producer", data: "gateway:\n  token: t\nproducer:\n  type: carrier-pigeon\n", err: ErrConfigurationValidateProducer},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseConfiguration([]byte(test.data))
			require.ErrorIs(t, err, test.err)
			assert.ErrorIs(t, err, ErrLoadConfigurationFailure)
		})
	}

	for _, shardIDs := range []string{"0-x", "5-6", "2-5", "3-1", ",", "0-2147483647"} {
		_, err := ParseConfiguration([]byte("gateway:\n  token: t\n  shard_count: 4\n  shard_ids: \"" + shardIDs + "\"\n"))
		assert.ErrorIs(t, err, ErrConfigurationValidateShards, shardIDs)
		assert.ErrorIs(t, err, ErrLoadConfigurationFailure, shardIDs)
	}
}

func TestLoadConfiguration(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrReadConfigurationFailure)

	path := filepath.Join(t.TempDir(), "sandwich.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  token: abc\n"), 0o600))

	configuration, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", configuration.Gateway.Token)
}

func TestLoadEnv(t *testing.T) {
	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), ".env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SANDWICH_TEST_ENV_VALUE=from-env\n"), 0o600))

	t.Cleanup(func() { os.Unsetenv("SANDWICH_TEST_ENV_VALUE") })

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-env", os.Getenv("SANDWICH_TEST_ENV_VALUE"))
}

func TestReturnRangeInt32(t *testing.T) {
	tests := []struct {
		input    string
		max      int32
		expected []int32
	}{
		{input: "0-4,6-7", max: 10, expected: []int32{0, 1, 2, 3, 4, 6, 7}},
		{input: "3", max: 10, expected: []int32{3}},
		{input: " 1 , 2-3 ", max: 10, expected: []int32{1, 2, 3}},
		{input: "0-3", max: 4, expected: []int32{0, 1, 2, 3}},
		{input: "", max: 4, expected: nil},
	}

	for _, test := range tests {
		result, err := returnRangeInt32(test.input, test.max)
		require.NoError(t, err, test.input)
		assert.Equal(t, test.expected, result, test.input)
	}

	for _, input := range []string{"1-a", "0-9", "4", "-1", "3-1", "2147483647", "2147483646-2147483647"} {
		_, err := returnRangeInt32(input, 4)
		assert.Error(t, err, input)
	}

	result, err := returnRangeInt32("2147483645-2147483646", 2147483647)
	require.NoError(t, err)
	assert.Equal(t, []int32{2147483645, 2147483646}, result)
}
