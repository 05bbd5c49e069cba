package sandwich

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggingConfiguration struct {
	Level string `yaml:"level"`

	ConsoleLoggingEnabled bool `yaml:"console_logging"`
	EncodeAsJSON          bool `yaml:"encode_as_json"`

	FileLoggingEnabled bool   `yaml:"file_logging"`
	Directory          string `yaml:"directory"`
	Filename           string `yaml:"filename"`
	MaxSize            int    `yaml:"max_size"`
	MaxBackups         int    `yaml:"max_backups"`
	MaxAge             int    `yaml:"max_age"`
	Compress           bool   `yaml:"compress"`
}

// NewLogger builds the daemon logger. The returned closer flushes the log file
// and is nil when file logging is off.
func NewLogger(configuration LoggingConfiguration, console io.Writer) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(configuration.Level)
	if err != nil || configuration.Level == "" {
		level = zerolog.InfoLevel
	}

	writers := make([]io.Writer, 0, 2)

	if configuration.ConsoleLoggingEnabled {
		if console == nil {
			console = os.Stdout
		}

		if configuration.EncodeAsJSON {
			writers = append(writers, console)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        console,
				TimeFormat: time.Stamp,
			})
		}
	}

	var closer io.Closer

	if configuration.FileLoggingEnabled {
		fileLogger := &lumberjack.Logger{
			Filename:   filepath.Join(configuration.Directory, configuration.Filename),
			MaxBackups: configuration.MaxBackups,
			MaxSize:    configuration.MaxSize,
			MaxAge:     configuration.MaxAge,
			Compress:   configuration.Compress,
		}

		writers = append(writers, fileLogger)
		closer = fileLogger
	}

	if len(writers) == 0 {
		return zerolog.Nop(), nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().
		Logger()

	return logger, closer
}
