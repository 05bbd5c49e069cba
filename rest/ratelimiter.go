package rest

import (
	"context"
	"sync"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/pkg/syncmap"
)

// RateLimiter hands out buckets by key and owns the global gate that blocks
// every request while the platform reports a global rate limit.
type RateLimiter struct {
	buckets syncmap.Map[string, *Bucket]

	globalMu     sync.Mutex
	globalLocked bool
	globalGate   chan struct{}
}

func NewRateLimiter() *RateLimiter {
	gate := make(chan struct{})
	close(gate)

	return &RateLimiter{
		globalGate: gate,
	}
}

// Bucket returns the bucket for key, creating it on first use.
func (rl *RateLimiter) Bucket(key string) *Bucket {
	if bucket, ok := rl.buckets.Load(key); ok {
		return bucket
	}

	bucket, _ := rl.buckets.LoadOrStore(key, newBucket(key))

	return bucket
}

// Acquire waits for the global gate and then acquires the bucket for key.
// Callers must Release the returned bucket.
func (rl *RateLimiter) Acquire(ctx context.Context, key string) (*Bucket, error) {
	if err := rl.WaitGlobal(ctx); err != nil {
		return nil, err
	}

	bucket := rl.Bucket(key)

	if err := bucket.Acquire(ctx); err != nil {
		return nil, err
	}

	return bucket, nil
}

// WaitGlobal blocks while the global gate is closed.
func (rl *RateLimiter) WaitGlobal(ctx context.Context) error {
	rl.globalMu.Lock()
	gate := rl.globalGate
	rl.globalMu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetGlobalLock closes the global gate and reopens it after d. Closing an
// already closed gate is an error.
func (rl *RateLimiter) SetGlobalLock(d time.Duration) error {
	rl.globalMu.Lock()
	defer rl.globalMu.Unlock()

	if rl.globalLocked {
		return ErrGlobalLockAlreadyLocked
	}

	rl.globalLocked = true
	gate := make(chan struct{})
	rl.globalGate = gate

	time.AfterFunc(d, func() {
		rl.globalMu.Lock()
		rl.globalLocked = false
		close(gate)
		rl.globalMu.Unlock()
	})

	return nil
}

func (rl *RateLimiter) IsGloballyLocked() bool {
	rl.globalMu.Lock()
	defer rl.globalMu.Unlock()

	return rl.globalLocked
}

// Buckets returns how many buckets have been created.
func (rl *RateLimiter) Buckets() int {
	return rl.buckets.Count()
}
