package bridge

import (
	"context"
	"sync"
)

// Lock is a per-device mutual exclusion used to serialize installs.
// Unlike sync.Mutex, acquisition is context-aware so a cancelled caller
// never ends up holding (or leaking) the lock.
type Lock struct {
	ch chan struct{}
}

// NewLock creates an unheld lock.
func NewLock() *Lock {
	return &Lock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or the context is done. On
// success it returns a release function that is safe to call more than
// once; callers should defer it immediately so the lock is released on
// every exit path.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-l.ch })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire attempts to take the lock without blocking.
func (l *Lock) TryAcquire() (func(), bool) {
	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-l.ch })
		}, true
	default:
		return nil, false
	}
}
