package redisclient

import (
	"context"
	"sync"
)

type localSlotLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalSlotLocker returns an in-process Locker for single-instance
// deployments and tests. Semantics match the Redis locker: a second caller
// for a held key fails fast with ErrLockNotAcquired instead of waiting.
func NewLocalSlotLocker() Locker {
	return &localSlotLocker{held: make(map[string]struct{})}
}

func (l *localSlotLocker) WithSlotLock(ctx context.Context, key SlotKey, fn func(ctx context.Context) error) error {
	k := key.String()

	l.mu.Lock()
	if _, busy := l.held[k]; busy {
		l.mu.Unlock()
		return ErrLockNotAcquired
	}
	l.held[k] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, k)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
