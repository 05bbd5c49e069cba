package sandwich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/gateway"
	"github.com/WelcomerTeam/Sandwich-Gateway/mqclients"
	"github.com/WelcomerTeam/Sandwich-Gateway/rest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"go.uber.org/atomic"
)

// VERSION follows semantic versioning.
const VERSION = "2.0.0"

// ShutdownTimeout bounds how long Close waits for shard loops to exit.
const ShutdownTimeout = 10 * time.Second

// Sandwich runs one bot's shards, producing their events and serving their status.
type Sandwich struct {
	Logger zerolog.Logger

	Configuration SandwichConfiguration

	Client   *rest.Client
	Manager  *gateway.Manager
	Producer mqclients.MQClient

	registry *prometheus.Registry
	server   *fasthttp.Server

	startTime time.Time
	opened    *atomic.Bool
}

func NewSandwich(logger zerolog.Logger, configuration SandwichConfiguration) (*Sandwich, error) {
	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfigurationFailure, err)
	}

	sg := &Sandwich{
		Logger:        logger,
		Configuration: configuration,
		registry:      prometheus.NewRegistry(),
		opened:        atomic.NewBool(false),
	}

	options := []rest.ClientOption{rest.WithLogger(logger)}

	if configuration.REST.BaseURL != "" {
		options = append(options, rest.WithBaseURL(configuration.REST.BaseURL))
	}

	if configuration.REST.UserAgent != "" {
		options = append(options, rest.WithUserAgent(configuration.REST.UserAgent))
	}

	if configuration.REST.MaxRetries > 0 {
		options = append(options, rest.WithMaxRetries(configuration.REST.MaxRetries))
	}

	sg.Client = rest.NewClient(configuration.Gateway.Token, options...)

	managerConfiguration, err := configuration.Gateway.ManagerConfiguration()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfigurationFailure, err)
	}

	managerConfiguration.Logger = logger

	sg.Manager, err = gateway.NewManager(sg.Client, managerConfiguration)
	if err != nil {
		return nil, fmt.Errorf("failed to create manager: %w", err)
	}

	if configuration.Producer.Type != "" {
		sg.Producer, err = mqclients.NewMQClient(configuration.Producer.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigurationValidateProducer, err)
		}
	}

	sg.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sg.registry.MustRegister(gateway.Collectors()...)
	sg.registry.MustRegister(rest.Collectors()...)

	return sg, nil
}

// Open connects the producer, starts the status server and starts the shards.
// It returns once every shard has been started.
func (sg *Sandwich) Open(ctx context.Context) error {
	if !sg.opened.CompareAndSwap(false, true) {
		return ErrSandwichAlreadyOpen
	}

	sg.startTime = time.Now()

	sg.Logger.Info().Str("version", VERSION).Msg("Starting sandwich")

	if sg.Producer != nil {
		if err := sg.openProducer(ctx); err != nil {
			return err
		}
	}

	if sg.Configuration.HTTP.Enabled {
		sg.openServer()
	}

	if err := sg.Manager.Start(ctx, false, sg.Configuration.Gateway.FailEarly); err != nil {
		return fmt.Errorf("failed to start manager: %w", err)
	}

	return nil
}

func (sg *Sandwich) openProducer(ctx context.Context) error {
	producer := sg.Configuration.Producer

	if err := sg.Producer.Connect(ctx, producer.ClientName, producer.Configuration); err != nil {
		sg.Logger.Error().Err(err).Str("type", sg.Producer.String()).Msg("Failed to connect producer")

		return fmt.Errorf("failed to connect producer: %w", err)
	}

	sg.Manager.AddDispatchHook(gateway.WildcardHook, NewProducerHook(
		sg.Producer,
		producer.Channel,
		producer.Identifier,
		producer.Blacklist,
	))

	sg.Logger.Info().
		Str("type", sg.Producer.String()).
		Str("channel", producer.Channel).
		Msg("Connected producer")

	return nil
}

func (sg *Sandwich) openServer() {
	sg.server = &fasthttp.Server{
		Handler: NewStatusHandler(sg.Logger, sg.Manager, sg.registry, sg.startTime),
		Name:    "Sandwich-Gateway",
	}

	host := sg.Configuration.HTTP.Host

	go func() {
		sg.Logger.Info().Str("host", host).Msg("Serving http")

		if err := sg.server.ListenAndServe(host); err != nil {
			sg.Logger.Error().Str("host", host).Err(err).Msg("Failed to serve http server")
		}
	}()
}

// Wait blocks until the shards stop, returning the error that stopped them.
func (sg *Sandwich) Wait(ctx context.Context) error {
	return sg.Manager.Wait(ctx)
}

// Close stops the shards and waits for their loops to exit, lets running hooks
// finish, then closes the server and producer.
func (sg *Sandwich) Close() {
	sg.Logger.Info().Msg("Closing sandwich")

	sg.Manager.Close()

	// Shard loops may still be dispatching hooks until they exit.
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := sg.Manager.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
		sg.Logger.Warn().Dur("timeout", ShutdownTimeout).Msg("Timed out waiting for shards to close")
	}

	sg.Manager.WaitForHooks()

	if sg.server != nil {
		if err := sg.server.Shutdown(); err != nil {
			sg.Logger.Warn().Err(err).Msg("Failed to shutdown http server")
		}
	}

	if sg.Producer != nil && !sg.Producer.IsClosed() {
		sg.Producer.Close()
	}
}
