package sandwich

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerConsole(t *testing.T) {
	buf := &bytes.Buffer{}

	logger, closer := NewLogger(LoggingConfiguration{
		Level:                 "info",
		ConsoleLoggingEnabled: true,
		EncodeAsJSON:          true,
	}, buf)
	assert.Nil(t, closer)

	logger.Debug().Msg("hidden")
	logger.Info().Str("shard", "0").Msg("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"visible"`)
	assert.Contains(t, buf.String(), `"shard":"0"`)
}

func TestNewLoggerFile(t *testing.T) {
	directory := t.TempDir()

	logger, closer := NewLogger(LoggingConfiguration{
		FileLoggingEnabled: true,
		Directory:          directory,
		Filename:           "sandwich.log",
		MaxSize:            1,
	}, nil)
	require.NotNil(t, closer)

	logger.Info().Msg("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(directory, "sandwich.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNewLoggerDisabled(t *testing.T) {
	logger, closer := NewLogger(LoggingConfiguration{}, nil)
	assert.Nil(t, closer)

	// Nop loggers drop everything.
	logger.Error().Msg("nothing")
}
