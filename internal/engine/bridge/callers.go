package bridge

import (
	"context"
	"sync"
)

// flightCallers hands every caller waiting on the same cache key one shared context.
// The context is cancelled once the last of those callers leaves.
type flightCallers struct {
	mu      sync.Mutex
	flights map[string]*flightContext
}

type flightContext struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	refs   int
}

func newFlightCallers() *flightCallers {
	return &flightCallers{flights: make(map[string]*flightContext)}
}

// join returns the context the run for key executes on, and a leave func to call
// once the caller stops waiting. The context keeps the values of the first caller's ctx.
func (c *flightCallers) join(ctx context.Context, key string) (context.Context, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flights[key]
	if !ok {
		runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
		f = &flightContext{ctx: runCtx, cancel: cancel}
		c.flights[key] = f
	}
	f.refs++

	var once sync.Once
	return f.ctx, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			f.refs--
			if f.refs > 0 {
				return
			}
			f.cancel(context.Cause(ctx))
			delete(c.flights, key)
		})
	}
}
