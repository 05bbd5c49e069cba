package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	sandwich "github.com/WelcomerTeam/Sandwich-Gateway"
	"github.com/rs/zerolog"
)

func main() {
	configurationPath := flag.String("config", "sandwich.yaml", "Path of the YAML configuration file")
	envPath := flag.String("env", ".env", "Path of an optional .env file loaded before the configuration")
	flag.Parse()

	// Used until the configured logger exists.
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := sandwich.LoadEnv(*envPath); err != nil {
		logger.Panic().Err(err).Msg("Failed to load env")
	}

	configuration, err := sandwich.LoadConfiguration(*configurationPath)
	if err != nil {
		logger.Panic().Err(err).Str("path", *configurationPath).Msg("Failed to load configuration")
	}

	logger, logCloser := sandwich.NewLogger(configuration.Logging, os.Stdout)
	if logCloser != nil {
		defer logCloser.Close()
	}

	sg, err := sandwich.NewSandwich(logger, configuration)
	if err != nil {
		logger.Panic().Err(err).Msg("Failed to create sandwich")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = sg.Open(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to open sandwich")
		sg.Close()

		return
	}

	if err = sg.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Shards stopped")
	}

	sg.Close()
}
