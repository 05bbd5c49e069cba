package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WildcardHook receives every event regardless of its dispatch name.
const WildcardHook = "*"

// DispatchHook is called for every event whose dispatch name it was registered under.
// The context is not cancelled when the shard reconnects or closes.
type DispatchHook func(ctx context.Context, event *GatewayEvent) error

// HookID identifies a registered hook so it can be removed later.
type HookID string

type hookEntry struct {
	hook DispatchHook
	id   HookID
	name string
}

// HookRegistry maps dispatch names to the hooks subscribed to them.
type HookRegistry struct {
	Logger zerolog.Logger

	mu    sync.RWMutex
	hooks map[string][]hookEntry

	wg sync.WaitGroup
}

func NewHookRegistry(logger zerolog.Logger) *HookRegistry {
	return &HookRegistry{
		Logger: logger,
		hooks:  make(map[string][]hookEntry),
	}
}

// Add registers hook under name. Names are matched case-insensitively.
func (r *HookRegistry) Add(name string, hook DispatchHook) HookID {
	id := HookID(uuid.NewString())
	r.add(id, name, hook)

	return id
}

func (r *HookRegistry) add(id HookID, name string, hook DispatchHook) {
	name = strings.ToUpper(name)

	r.mu.Lock()
	r.hooks[name] = append(r.hooks[name], hookEntry{hook: hook, id: id, name: name})
	r.mu.Unlock()
}

// Remove unregisters the hook with the given id. It returns false if it was not registered.
func (r *HookRegistry) Remove(id HookID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, entries := range r.hooks {
		for i, entry := range entries {
			if entry.id != id {
				continue
			}

			remaining := make([]hookEntry, 0, len(entries)-1)
			remaining = append(remaining, entries[:i]...)
			remaining = append(remaining, entries[i+1:]...)

			if len(remaining) == 0 {
				delete(r.hooks, name)
			} else {
				r.hooks[name] = remaining
			}

			return true
		}
	}

	return false
}

// Merge copies every hook of other into r, keeping their ids.
func (r *HookRegistry) Merge(other *HookRegistry) {
	if other == nil || other == r {
		return
	}

	other.mu.RLock()
	entries := make([]hookEntry, 0, len(other.hooks))

	for _, named := range other.hooks {
		entries = append(entries, named...)
	}
	other.mu.RUnlock()

	for _, entry := range entries {
		r.add(entry.id, entry.name, entry.hook)
	}
}

// Len returns the number of registered hooks.
func (r *HookRegistry) Len() (count int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entries := range r.hooks {
		count += len(entries)
	}

	return count
}

// Dispatch starts every hook registered under the event's dispatch name and
// every wildcard hook. Each hook runs in its own goroutine; Dispatch does not wait.
func (r *HookRegistry) Dispatch(ctx context.Context, event *GatewayEvent) {
	name := event.DispatchName()

	r.mu.RLock()
	named := r.hooks[name]
	wildcard := r.hooks[WildcardHook]

	entries := make([]hookEntry, 0, len(named)+len(wildcard))
	entries = append(entries, named...)
	entries = append(entries, wildcard...)
	r.mu.RUnlock()

	if len(entries) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)

	r.wg.Add(len(entries))

	for _, entry := range entries {
		go r.run(ctx, entry, event)
	}
}

// Wait blocks until every running hook has returned.
func (r *HookRegistry) Wait() {
	r.wg.Wait()
}

func (r *HookRegistry) run(ctx context.Context, entry hookEntry, event *GatewayEvent) {
	defer r.wg.Done()

	defer func() {
		if recovered := recover(); recovered != nil {
			gatewayHookFailureCount.WithLabelValues(entry.name).Inc()

			r.Logger.Error().
				Str("hook", entry.name).
				Str("event", event.DispatchName()).
				Str("panic", fmt.Sprint(recovered)).
				Msg("Recovered panic in dispatch hook")
		}
	}()

	if err := entry.hook(ctx, event); err != nil {
		gatewayHookFailureCount.WithLabelValues(entry.name).Inc()

		r.Logger.Warn().Err(err).
			Str("hook", entry.name).
			Str("event", event.DispatchName()).
			Msg("Dispatch hook returned error")
	}
}
