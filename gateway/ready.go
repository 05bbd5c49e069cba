package gateway

import "sync"

// readySignal is closed once per session epoch when the shard receives READY.
type readySignal struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func newReadySignal() *readySignal {
	return &readySignal{ch: make(chan struct{})}
}

// Set closes the current channel. Calls after the first in an epoch do nothing.
func (r *readySignal) Set() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.set {
		return false
	}

	r.set = true
	close(r.ch)

	return true
}

// Reset starts a new epoch. Waiters on an unset signal keep waiting on the same channel.
func (r *readySignal) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.set {
		r.set = false
		r.ch = make(chan struct{})
	}
}

func (r *readySignal) C() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ch
}

func (r *readySignal) IsSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.set
}
