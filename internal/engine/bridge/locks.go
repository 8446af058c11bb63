package bridge

import (
	"context"
	"sync"
)

// dirLocks serializes driver runs that share an output directory.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newDirLocks() *dirLocks {
	return &dirLocks{locks: make(map[string]chan struct{})}
}

// acquire blocks until dir is free or ctx is done.
func (l *dirLocks) acquire(ctx context.Context, dir string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.locks[dir]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[dir] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
