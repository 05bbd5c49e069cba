package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/pkg/limiter"
	"github.com/WelcomerTeam/Sandwich-Gateway/pkg/syncmap"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// DefaultIdentifyWindow is how long an identify slot is held after being acquired.
const DefaultIdentifyWindow = 5 * time.Second

// Requester is the REST surface the manager needs. *rest.Client implements it.
type Requester interface {
	Dialer
	GatewayBot(ctx context.Context) (*discord.GatewayBot, error)
}

// ManagerConfiguration represents the configuration of a manager.
type ManagerConfiguration struct {
	Logger zerolog.Logger

	Presence *discord.UpdateStatus
	Token    string

	// ShardIDs requires ShardCount. With neither set, the recommended shard count is used.
	ShardIDs   []int32
	ShardCount int32

	Intents        int32
	LargeThreshold int32
	Compress       bool

	IdentifyWindow time.Duration
}

// Manager starts and supervises every shard of a bot.
type Manager struct {
	Logger zerolog.Logger

	client        Requester
	configuration ManagerConfiguration

	hooksMu sync.Mutex
	hooks   *HookRegistry

	shards *syncmap.Map[int32, *Shard]

	gateway *atomic.Pointer[discord.GatewayBot]
	started *atomic.Bool
	closing *atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	errMu sync.Mutex
	err   error

	finishOnce sync.Once
	finished   chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewManager validates the configuration and creates a manager that has not started any shards.
func NewManager(client Requester, configuration ManagerConfiguration) (*Manager, error) {
	if configuration.Token == "" {
		return nil, ErrManagerMissingToken
	}

	if len(configuration.ShardIDs) > 0 && configuration.ShardCount <= 0 {
		return nil, ErrShardCountRequired
	}

	for _, shardID := range configuration.ShardIDs {
		if shardID < 0 || shardID >= configuration.ShardCount {
			return nil, fmt.Errorf("%w: %d of %d", ErrShardIDOutOfRange, shardID, configuration.ShardCount)
		}
	}

	if configuration.IdentifyWindow <= 0 {
		configuration.IdentifyWindow = DefaultIdentifyWindow
	}

	if configuration.LargeThreshold == 0 {
		configuration.LargeThreshold = GatewayLargeThreshold
	}

	return &Manager{
		Logger: configuration.Logger,

		client:        client,
		configuration: configuration,

		hooks:  NewHookRegistry(configuration.Logger),
		shards: &syncmap.Map[int32, *Shard]{},

		gateway: atomic.NewPointer[discord.GatewayBot](nil),
		started: atomic.NewBool(false),
		closing: atomic.NewBool(false),

		finished: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start fetches the gateway and brings every shard up in ascending order. A shard
// only starts once an identify slot is free and the previous shard is ready.
// Shards live until Close is called or ctx is done. If wait is set, Start blocks
// until then or until a shard fails with a critical error.
func (m *Manager) Start(ctx context.Context, wait, failEarly bool) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrManagerAlreadyStarted
	}

	gateway, err := m.client.GatewayBot(ctx)
	if err != nil {
		m.finish(err)

		return fmt.Errorf("failed to get gateway: %w", err)
	}

	m.gateway.Store(gateway)

	shardIDs, shardCount := m.resolveShards(gateway)
	if len(shardIDs) == 0 {
		m.finish(ErrManagerMissingShards)

		return ErrManagerMissingShards
	}

	limit := gateway.SessionStartLimit

	m.Logger.Info().
		Int32("maxConcurrency", limit.MaxConcurrency).
		Int32("remaining", limit.Remaining).
		Int32("shardCount", shardCount).
		Int("shards", len(shardIDs)).
		Msg("Retrieved gateway")

	if failEarly && int(limit.Remaining) < len(shardIDs) {
		err = fmt.Errorf("%w: %d remaining, %d required", ErrSessionLimitExhausted, limit.Remaining, len(shardIDs))
		m.finish(err)

		return err
	}

	identifyLimiter := limiter.NewWindowLimiter("identify", int(limit.MaxConcurrency), m.configuration.IdentifyWindow)

	runCtx, cancel := context.WithCancel(ctx)

	m.cancelMu.Lock()
	m.cancel = cancel
	m.cancelMu.Unlock()

	group, groupCtx := errgroup.WithContext(runCtx)

	var previous *Shard

	for _, shardID := range shardIDs {
		shard := m.newShard(shardID, shardCount)

		if err = identifyLimiter.Acquire(groupCtx); err == nil && previous != nil {
			err = previous.WaitForReady(groupCtx)
		}

		if err != nil {
			m.closeShards()
			cancel()

			if groupErr := group.Wait(); groupErr != nil && !errors.Is(groupErr, context.Canceled) {
				err = groupErr
			} else if m.closing.Load() {
				err = nil
			}

			m.finish(err)

			return err
		}

		m.Logger.Debug().Int32("shardId", shardID).Msg("Starting shard")

		group.Go(func() error {
			return shard.Connect(groupCtx, gateway.URL)
		})

		previous = shard
	}

	go func() {
		m.finish(group.Wait())
	}()

	if !wait {
		return nil
	}

	select {
	case <-m.done:
		return nil
	case <-m.finished:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) newShard(shardID, shardCount int32) *Shard {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()

	shard := NewShard(ShardConfig{
		Dialer:         m.client,
		Logger:         m.Logger,
		Presence:       m.configuration.Presence,
		Token:          m.configuration.Token,
		ID:             shardID,
		Count:          shardCount,
		Intents:        m.configuration.Intents,
		LargeThreshold: m.configuration.LargeThreshold,
		Compress:       m.configuration.Compress,
	})

	shard.Hooks().Merge(m.hooks)
	m.shards.Store(shardID, shard)

	return shard
}

func (m *Manager) resolveShards(gateway *discord.GatewayBot) (shardIDs []int32, shardCount int32) {
	switch {
	case len(m.configuration.ShardIDs) > 0:
		shardCount = m.configuration.ShardCount
		shardIDs = slices.Clone(m.configuration.ShardIDs)
	case m.configuration.ShardCount > 0:
		shardCount = m.configuration.ShardCount
		shardIDs = shardRange(shardCount)
	default:
		shardCount = gateway.Shards
		shardIDs = shardRange(shardCount)
	}

	slices.Sort(shardIDs)

	return slices.Compact(shardIDs), shardCount
}

func shardRange(count int32) []int32 {
	shardIDs := make([]int32, 0, count)

	for i := int32(0); i < count; i++ {
		shardIDs = append(shardIDs, i)
	}

	return shardIDs
}

func (m *Manager) finish(err error) {
	m.finishOnce.Do(func() {
		m.errMu.Lock()
		m.err = err
		m.errMu.Unlock()

		close(m.finished)
	})
}

// Err returns the error that stopped the shards, if any. Shutting down is not an error.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()

	if errors.Is(m.err, context.Canceled) {
		return nil
	}

	return m.err
}

// Wait blocks until every shard's connection loop has exited.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.finished:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Close has been called.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close closes every shard and then stops the manager. It does not wait for the
// shard loops to exit; use Wait for that. Calling Close again does nothing.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.Logger.Info().Msg("Closing manager")
		m.closing.Store(true)

		// A manager that never started has no shard loops for Wait to see exit.
		if m.started.CompareAndSwap(false, true) {
			m.finish(nil)
		}

		m.closeShards()

		m.cancelMu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		m.cancelMu.Unlock()

		close(m.done)
	})
}

func (m *Manager) closeShards() {
	wg := sync.WaitGroup{}

	m.shards.Range(func(_ int32, shard *Shard) bool {
		wg.Add(1)

		go func() {
			defer wg.Done()
			shard.Close()
		}()

		return true
	})

	wg.Wait()
}

// AddDispatchHook registers a hook on the manager and on every shard it has created.
// Use WildcardHook to receive every event.
func (m *Manager) AddDispatchHook(name string, hook DispatchHook) HookID {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()

	id := m.hooks.Add(name, hook)

	m.shards.Range(func(_ int32, shard *Shard) bool {
		shard.Hooks().add(id, name, hook)

		return true
	})

	return id
}

// RemoveDispatchHook removes a hook everywhere it was registered.
func (m *Manager) RemoveDispatchHook(id HookID) bool {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()

	removed := m.hooks.Remove(id)

	m.shards.Range(func(_ int32, shard *Shard) bool {
		shard.Hooks().Remove(id)

		return true
	})

	return removed
}

// WaitForHooks blocks until every running hook on every shard has returned.
func (m *Manager) WaitForHooks() {
	m.shards.Range(func(_ int32, shard *Shard) bool {
		shard.Hooks().Wait()

		return true
	})
}

func (m *Manager) Shard(shardID int32) (*Shard, bool) {
	return m.shards.Load(shardID)
}

// Shards returns every shard sorted by id.
func (m *Manager) Shards() []*Shard {
	shards := m.shards.Values()

	slices.SortFunc(shards, func(a, b *Shard) int {
		return int(a.ID - b.ID)
	})

	return shards
}

// Gateway returns the gateway response Start used, or nil before Start.
func (m *Manager) Gateway() *discord.GatewayBot {
	return m.gateway.Load()
}
