package limiter

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// WindowLimiter is a counting admission gate. Each Acquire takes a ticket
// and the ticket is handed back automatically once the window has passed,
// so at most rate acquisitions happen in any rolling window.
type WindowLimiter struct {
	name    string
	rate    int
	per     time.Duration
	tickets chan struct{}

	inProgress *atomic.Int32
}

// NewWindowLimiter allocates a new WindowLimiter. This is used to bound how many
// sessions may start in a window and how many payloads a shard may send.
func NewWindowLimiter(name string, rate int, per time.Duration) *WindowLimiter {
	if rate < 1 {
		rate = 1
	}

	l := &WindowLimiter{
		name:       name,
		rate:       rate,
		per:        per,
		tickets:    make(chan struct{}, rate),
		inProgress: atomic.NewInt32(0),
	}

	for i := 0; i < rate; i++ {
		l.tickets <- struct{}{}
	}

	return l
}

// Acquire waits for a free ticket. The ticket returns to the pool after the
// window without the caller releasing it.
func (l *WindowLimiter) Acquire(ctx context.Context) error {
	select {
	case <-l.tickets:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.inProgress.Inc()

	time.AfterFunc(l.per, func() {
		l.inProgress.Dec()
		l.tickets <- struct{}{}
	})

	return nil
}

// TryAcquire takes a ticket only if one is immediately available.
func (l *WindowLimiter) TryAcquire() bool {
	select {
	case <-l.tickets:
	default:
		return false
	}

	l.inProgress.Inc()

	time.AfterFunc(l.per, func() {
		l.inProgress.Dec()
		l.tickets <- struct{}{}
	})

	return true
}

// InProgress returns how many tickets are currently out.
func (l *WindowLimiter) InProgress() int32 {
	return l.inProgress.Load()
}

func (l *WindowLimiter) Name() string {
	return l.name
}

func (l *WindowLimiter) Rate() int {
	return l.rate
}

func (l *WindowLimiter) Window() time.Duration {
	return l.per
}
