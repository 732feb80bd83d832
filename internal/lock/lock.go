// Package lock provides named try-acquire/release mutual exclusion across
// process replicas.
package lock

import (
	"context"
	"sync"
)

type Locker interface {
	// TryLock returns false without error when another holder owns key.
	TryLock(ctx context.Context, key int64) (bool, error)
	Unlock(ctx context.Context, key int64) error
}

// Local only excludes within one process.
type Local struct {
	mu   sync.Mutex
	held map[int64]bool
}

func NewLocal() *Local {
	return &Local{held: make(map[int64]bool)}
}

func (l *Local) TryLock(_ context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *Local) Unlock(_ context.Context, key int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
