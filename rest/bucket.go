package rest

import (
	"context"
	"time"
)

// Bucket is a lock scoped to one rate limit bucket. A holder may Defer the
// release, which keeps the bucket locked until the platform's reset window
// has passed even though the holder itself is done.
type Bucket struct {
	key string

	sem chan struct{}

	// Only touched by the current holder.
	deferred   bool
	deferDelay time.Duration
}

func newBucket(key string) *Bucket {
	return &Bucket{
		key: key,
		sem: make(chan struct{}, 1),
	}
}

func (b *Bucket) Key() string {
	return b.key
}

// Acquire blocks until the bucket is free. It only fails when ctx is done.
func (b *Bucket) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Defer marks the current hold so that Release keeps the bucket locked for d
// longer. Only the first Defer in a hold has an effect.
func (b *Bucket) Defer(d time.Duration) {
	if b.deferred {
		return
	}

	b.deferred = true
	b.deferDelay = d
}

// Release ends the current hold, either immediately or after the deferred delay.
func (b *Bucket) Release() {
	if !b.deferred {
		<-b.sem

		return
	}

	delay := b.deferDelay
	b.deferred = false
	b.deferDelay = 0

	time.AfterFunc(delay, func() {
		<-b.sem
	})
}

// Locked reports whether the bucket is held or waiting on a deferred release.
func (b *Bucket) Locked() bool {
	return len(b.sem) == 1
}
