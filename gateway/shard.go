package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/WelcomerTeam/RealRock/deadlock"
	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/pkg/limiter"
	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
	"github.com/WelcomerTeam/czlib"
	"github.com/rs/zerolog"
	gotils_strconv "github.com/savsgio/gotils/strconv"
	"go.uber.org/atomic"
	"nhooyr.io/websocket"
)

const (
	GatewayVersion = "10"

	// WebsocketReconnectCloseCode keeps the session resumable when we close the socket.
	WebsocketReconnectCloseCode = 4000

	// MaxReconnectWait caps the backoff between failed dials.
	MaxReconnectWait = 60 * time.Second

	// ShardSendRate payloads may be sent every ShardSendWindow, heartbeats included.
	ShardSendRate   = 120
	ShardSendWindow = time.Minute

	GatewayLargeThreshold = 100

	identifyBrowser = "Sandwich-Gateway"
)

// Dialer opens gateway sockets. *rest.Client implements it.
type Dialer interface {
	SpawnSocket(ctx context.Context, url string) (*websocket.Conn, error)
}

// ShardConfig holds everything a shard needs to identify.
type ShardConfig struct {
	Dialer Dialer
	Logger zerolog.Logger

	// SendLimiter defaults to ShardSendRate per ShardSendWindow.
	SendLimiter *limiter.WindowLimiter

	// Hooks defaults to an empty registry.
	Hooks *HookRegistry

	Presence *discord.UpdateStatus
	Token    string

	ID             int32
	Count          int32
	Intents        int32
	LargeThreshold int32
	Compress       bool
}

// Shard owns a single gateway connection.
type Shard struct {
	Logger zerolog.Logger

	dialer      Dialer
	sendLimiter *limiter.WindowLimiter
	hooks       *HookRegistry
	presence    *discord.UpdateStatus

	token          string
	ID             int32
	Count          int32
	intents        int32
	largeThreshold int32
	compress       bool

	state *atomic.Int32

	sessionID        *atomic.String
	resumeGatewayURL *atomic.String
	sequence         *atomic.Int64
	resuming         *atomic.Bool

	heartbeatInterval *atomic.Duration
	lastHeartbeatSent *atomic.Time
	lastHeartbeatAck  *atomic.Time
	latency           *atomic.Duration
	heartbeatActive   *atomic.Bool

	reconnectRequested *atomic.Bool
	connecting         *atomic.Bool
	closing            *atomic.Bool

	pacemakerMu         sync.Mutex
	heartbeatDeadSignal deadlock.DeadSignal

	connMu sync.RWMutex
	conn   *websocket.Conn

	ready  *readySignal
	closed chan struct{}
}

// NewShard creates a disconnected shard.
func NewShard(cfg ShardConfig) *Shard {
	sendLimiter := cfg.SendLimiter
	if sendLimiter == nil {
		sendLimiter = limiter.NewWindowLimiter(fmt.Sprintf("shard-%d", cfg.ID), ShardSendRate, ShardSendWindow)
	}

	logger := cfg.Logger.With().Int32("shardId", cfg.ID).Int32("shardCount", cfg.Count).Logger()

	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NewHookRegistry(logger)
	}

	return &Shard{
		Logger: logger,

		dialer:      cfg.Dialer,
		sendLimiter: sendLimiter,
		hooks:       hooks,
		presence:    cfg.Presence,

		token:          cfg.Token,
		ID:             cfg.ID,
		Count:          cfg.Count,
		intents:        cfg.Intents,
		largeThreshold: cfg.LargeThreshold,
		compress:       cfg.Compress,

		state: atomic.NewInt32(int32(ShardStateDisconnected)),

		sessionID:        atomic.NewString(""),
		resumeGatewayURL: atomic.NewString(""),
		sequence:         atomic.NewInt64(0),
		resuming:         atomic.NewBool(false),

		heartbeatInterval: atomic.NewDuration(0),
		lastHeartbeatSent: &atomic.Time{},
		lastHeartbeatAck:  &atomic.Time{},
		latency:           atomic.NewDuration(0),
		heartbeatActive:   atomic.NewBool(false),

		reconnectRequested: atomic.NewBool(false),
		connecting:         atomic.NewBool(false),
		closing:            atomic.NewBool(false),

		heartbeatDeadSignal: deadlock.DeadSignal{},

		ready:  newReadySignal(),
		closed: make(chan struct{}),
	}
}

// Hooks returns the registry events of this shard are dispatched to.
func (s *Shard) Hooks() *HookRegistry {
	return s.hooks
}

// Connect runs the connection loop until the shard is closed, ctx is done or the
// gateway closes with a critical code. Reconnects and resumes happen inside the loop.
func (s *Shard) Connect(ctx context.Context, gatewayURL string) error {
	if s.closing.Load() {
		return ErrShardClosed
	}

	if !s.connecting.CompareAndSwap(false, true) {
		return ErrShardAlreadyConnecting
	}
	defer s.connecting.Store(false)

	s.Logger.Debug().Msg("Started listening to shard")

	wait := time.Second

	for {
		err := s.connectOnce(ctx, gatewayURL)

		if s.closing.Load() {
			s.Logger.Debug().Msg("Shard closed")

			return nil
		}

		var critical *CriticalError

		switch {
		case errors.As(err, &critical):
			s.Logger.Error().Err(err).Int("code", critical.Code).Msg("Shard received critical closure code")
			s.transition(TransitionClosed)

			return err
		case ctx.Err() != nil:
			s.transition(TransitionClosed)

			return ctx.Err()
		case errors.Is(err, ErrDialFailed):
			s.Logger.Warn().Err(err).Dur("wait", wait).Msg("Failed to dial gateway. Retrying")
			gatewayReconnectCount.WithLabelValues(shardLabel(s.ID), "dial").Inc()

			if err := s.sleep(ctx, wait); err != nil {
				if s.closing.Load() {
					return nil
				}

				s.transition(TransitionClosed)

				return err
			}

			wait *= 2
			if wait > MaxReconnectWait {
				wait = MaxReconnectWait
			}
		case errors.Is(err, ErrReconnect):
			wait = time.Second

			kind := "identify"
			if s.sessionID.Load() != "" {
				kind = "resume"
			}

			s.Logger.Info().Err(err).Str("kind", kind).Msg("Reconnecting shard")
			gatewayReconnectCount.WithLabelValues(shardLabel(s.ID), kind).Inc()
		default:
			s.transition(TransitionClosed)

			return err
		}
	}
}

// sleep waits d, returning early with an error if ctx is done or the shard is closed.
func (s *Shard) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrShardClosed
	}
}

func (s *Shard) connectOnce(ctx context.Context, gatewayURL string) error {
	s.reconnectRequested.Store(false)
	s.transition(TransitionDial)

	resuming := s.sessionID.Load() != ""
	s.resuming.Store(resuming)

	target := gatewayURL
	if resuming {
		if resumeURL := s.resumeGatewayURL.Load(); resumeURL != "" {
			target = resumeURL
		}
	}

	target, err := gatewayEndpoint(target)
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := s.dialer.SpawnSocket(connCtx, target)
	if err != nil {
		s.transition(TransitionDisconnect)

		return fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	s.setConn(conn)
	defer s.teardown(conn)

	if s.closing.Load() {
		return nil
	}

	s.transition(TransitionSocketOpen)
	s.Logger.Debug().Str("url", target).Bool("resuming", resuming).Msg("Connected to gateway")

	if resuming {
		s.transition(TransitionResume)

		err = s.Send(connCtx, &discord.Resume{
			Token:     s.token,
			SessionID: s.sessionID.Load(),
			Sequence:  s.sequence.Load(),
		})
		if err != nil {
			return err
		}
	}

	for {
		messageType, data, err := conn.Read(connCtx)
		if err != nil {
			return s.readError(ctx, err)
		}

		if messageType == websocket.MessageBinary {
			data, err = czlib.Decompress(data)
			if err != nil {
				s.Logger.Error().Err(err).Msg("Failed to decompress gateway frame")

				continue
			}
		}

		err = s.OnPayload(connCtx, data)
		if errors.Is(err, ErrReconnect) {
			return err
		}

		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to handle gateway payload")
		}
	}
}

// readError turns the error that ended a read into the loop's next step.
func (s *Shard) readError(ctx context.Context, err error) error {
	if s.closing.Load() {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if s.reconnectRequested.Load() {
		return ErrReconnect
	}

	code := int(websocket.CloseStatus(err))

	switch ClassifyCloseCode(code) {
	case CloseCritical:
		return &CriticalError{Code: code, Err: err}
	case CloseNonResumable:
		s.Logger.Warn().Int("code", code).Msg("Session can not be resumed")
		s.clearSession()

		return fmt.Errorf("%w: websocket closed with code %d", ErrReconnect, code)
	default:
		s.Logger.Warn().Err(err).Int("code", code).Msg("Websocket was closed")

		return fmt.Errorf("%w: %w", ErrReconnect, err)
	}
}

func (s *Shard) teardown(conn *websocket.Conn) {
	s.stopPacemaker()

	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()

	code := websocket.StatusCode(WebsocketReconnectCloseCode)
	if s.closing.Load() {
		code = websocket.StatusNormalClosure
	}

	if err := conn.Close(code, ""); err != nil {
		s.Logger.Trace().Err(err).Msg("Encountered error closing websocket")
	}

	if !s.closing.Load() {
		s.transition(TransitionDisconnect)
	}
}

func (s *Shard) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func (s *Shard) currentConn() *websocket.Conn {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	return s.conn
}

// closeForReconnect closes the socket so the read loop reconnects.
func (s *Shard) closeForReconnect(code int) {
	s.reconnectRequested.Store(true)

	conn := s.currentConn()
	if conn == nil {
		return
	}

	s.Logger.Debug().Int("code", code).Msg("Closing websocket connection")

	if err := conn.Close(websocket.StatusCode(code), ""); err != nil {
		s.Logger.Trace().Err(err).Msg("Encountered error closing websocket")
	}
}

func (s *Shard) clearSession() {
	s.sessionID.Store("")
	s.resumeGatewayURL.Store("")
	s.sequence.Store(0)
}

// updateSequence stores seq only if it is newer than the stored sequence.
func (s *Shard) updateSequence(seq int64) {
	for {
		current := s.sequence.Load()
		if seq <= current {
			return
		}

		if s.sequence.CompareAndSwap(current, seq) {
			return
		}
	}
}

func (s *Shard) transition(transition ShardTransition) bool {
	for {
		from := ShardState(s.state.Load())

		to, err := NextShardState(from, transition)
		if err != nil {
			s.Logger.Debug().Err(err).Msg("Ignored shard transition")

			return false
		}

		if s.state.CompareAndSwap(int32(from), int32(to)) {
			gatewayShardStatus.WithLabelValues(shardLabel(s.ID)).Set(float64(to))
			s.Logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Shard status changed")

			return true
		}
	}
}

// OnPayload handles a single decompressed frame read from the gateway.
func (s *Shard) OnPayload(ctx context.Context, data []byte) error {
	var payload discord.GatewayPayload

	if err := sandwichjson.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	s.Logger.Trace().Msg(">>> " + gotils_strconv.B2S(data))

	gatewayEventCount.WithLabelValues(shardLabel(s.ID), DirectionIncoming.String()).Inc()

	if payload.Op == discord.GatewayOpDispatch {
		gatewayDispatchEventCount.WithLabelValues(payload.Type).Inc()
	}

	s.hooks.Dispatch(ctx, &GatewayEvent{
		Shard:      s,
		Direction:  DirectionIncoming,
		Op:         payload.Op,
		Sequence:   payload.Sequence,
		Type:       payload.Type,
		Data:       payload.Data,
		Raw:        data,
		ReceivedAt: time.Now().UTC(),
	})

	if payload.Sequence != nil {
		s.updateSequence(*payload.Sequence)
	}

	handler, ok := gatewayHandlers[payload.Op]
	if !ok {
		s.Logger.Warn().Int("op", int(payload.Op)).Msg("Gateway sent unknown packet")

		return nil
	}

	return handler(ctx, s, payload)
}

// Send writes a command to the gateway after acquiring the send limiter. Failing to write
// closes the socket for a reconnect instead of returning an error.
func (s *Shard) Send(ctx context.Context, cmd discord.Command) error {
	// No ticket is spent without a socket to write to.
	if s.currentConn() == nil {
		return ErrShardNotConnected
	}

	if err := s.sendLimiter.Acquire(ctx); err != nil {
		return err
	}

	conn := s.currentConn()
	if conn == nil {
		return ErrShardNotConnected
	}

	op := cmd.Op()

	data, err := sandwichjson.Marshal(cmd)
	if err != nil {
		s.closeForReconnect(WebsocketReconnectCloseCode)

		return fmt.Errorf("failed to marshal command: %w", err)
	}

	res, err := sandwichjson.Marshal(discord.SentPayload{Op: op, Data: json.RawMessage(data)})
	if err != nil {
		s.closeForReconnect(WebsocketReconnectCloseCode)

		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	gatewayEventCount.WithLabelValues(shardLabel(s.ID), DirectionOutgoing.String()).Inc()

	s.hooks.Dispatch(ctx, &GatewayEvent{
		Shard:      s,
		Direction:  DirectionOutgoing,
		Op:         op,
		Data:       data,
		Raw:        res,
		ReceivedAt: time.Now().UTC(),
	})

	// Identify and resume carry the token.
	if op != discord.GatewayOpIdentify && op != discord.GatewayOpResume {
		s.Logger.Trace().Msg("<<< " + gotils_strconv.B2S(res))
	}

	if err = conn.Write(ctx, websocket.MessageText, res); err != nil {
		s.Logger.Warn().Err(err).Int("op", int(op)).Msg("Failed to write to gateway. Reconnecting")
		s.closeForReconnect(WebsocketReconnectCloseCode)
	}

	return nil
}

func (s *Shard) identify(ctx context.Context) error {
	s.ready.Reset()
	s.transition(TransitionIdentify)

	s.Logger.Debug().Msg("Sending identify")

	return s.Send(ctx, &discord.Identify{
		Token: s.token,
		Properties: &discord.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: identifyBrowser,
			Device:  identifyBrowser,
		},
		Compress:       s.compress,
		LargeThreshold: s.largeThreshold,
		Shard:          [2]int32{s.ID, s.Count},
		Presence:       s.presence,
		Intents:        s.intents,
	})
}

// RequestGuildMembers asks the gateway to send GUILD_MEMBERS_CHUNK events for a guild.
func (s *Shard) RequestGuildMembers(ctx context.Context, request *discord.RequestGuildMembers) error {
	return s.Send(ctx, request)
}

// UpdatePresence changes the presence of this shard.
func (s *Shard) UpdatePresence(ctx context.Context, presence *discord.UpdateStatus) error {
	return s.Send(ctx, presence)
}

func (s *Shard) UpdateVoiceState(ctx context.Context, voiceState *discord.VoiceStateUpdate) error {
	return s.Send(ctx, voiceState)
}

// Close stops the shard for good. The pacemaker has exited by the time Close returns.
// Calling Close again does nothing.
func (s *Shard) Close() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}

	s.Logger.Info().Msg("Closing shard")

	s.transition(TransitionClose)
	s.stopPacemaker()

	if conn := s.currentConn(); conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			s.Logger.Debug().Err(err).Msg("Encountered error closing websocket")
		}
	}

	s.transition(TransitionClosed)
	close(s.closed)
}

// Closed is closed once Close has been called.
func (s *Shard) Closed() <-chan struct{} {
	return s.closed
}

// WaitForReady blocks until the shard receives READY for its current session.
func (s *Shard) WaitForReady(ctx context.Context) error {
	select {
	case <-s.ready.C():
		return nil
	case <-s.closed:
		return ErrShardClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready returns a channel closed once READY has been received in the current session.
func (s *Shard) Ready() <-chan struct{} {
	return s.ready.C()
}

func (s *Shard) Status() ShardState {
	return ShardState(s.state.Load())
}

// Latency is the time between the last heartbeat and its acknowledgement.
func (s *Shard) Latency() time.Duration {
	return s.latency.Load()
}

func (s *Shard) Sequence() int64 {
	return s.sequence.Load()
}

func (s *Shard) SessionID() string {
	return s.sessionID.Load()
}

func (s *Shard) LastHeartbeatSent() time.Time {
	return s.lastHeartbeatSent.Load()
}

func (s *Shard) LastHeartbeatAck() time.Time {
	return s.lastHeartbeatAck.Load()
}

// HeartbeatActive reports if a pacemaker is running.
func (s *Shard) HeartbeatActive() bool {
	return s.heartbeatActive.Load()
}

// gatewayEndpoint adds the version and encoding to a gateway url.
func gatewayEndpoint(gatewayURL string) (string, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse gateway url: %w", err)
	}

	query := u.Query()
	query.Set("v", GatewayVersion)
	query.Set("encoding", "json")
	u.RawQuery = query.Encode()

	return u.String(), nil
}
