package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxWaiters caps how many callers may be coalescing at once.
const DefaultMaxWaiters = 10000

// FetchFunc produces a snapshot from the network.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// Coalescer shares one network fetch between concurrent misses on the same
// identity key.
type Coalescer struct {
	group      singleflight.Group
	waiters    atomic.Int64
	maxWaiters int64
}

func NewCoalescer(maxWaiters int) *Coalescer {
	if maxWaiters <= 0 {
		maxWaiters = DefaultMaxWaiters
	}
	return &Coalescer{maxWaiters: int64(maxWaiters)}
}

// Do runs fetch once for every caller that arrives while a fetch for key is
// running. led reports whether this caller's fetch produced the result; only
// the leader should write it back. A caller whose ctx ends stops waiting
// without affecting the others. An empty key, a nil Coalescer, or more than
// the allowed number of waiters runs fetch directly.
func (c *Coalescer) Do(ctx context.Context, key string, fetch FetchFunc) (Snapshot, bool, error) {
	if c == nil || key == "" {
		snapshot, err := fetch(ctx)
		return snapshot, true, err
	}
	if c.waiters.Add(1) > c.maxWaiters {
		c.waiters.Add(-1)
		snapshot, err := fetch(ctx)
		return snapshot, true, err
	}
	defer c.waiters.Add(-1)

	led := false
	ch := c.group.DoChan(key, func() (interface{}, error) {
		led = true
		return fetch(ctx)
	})
	select {
	case res := <-ch:
		snapshot, _ := res.Val.(Snapshot)
		return snapshot, led, res.Err
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	}
}

// Waiting reports how many callers are inside Do.
func (c *Coalescer) Waiting() int {
	if c == nil {
		return 0
	}
	return int(c.waiters.Load())
}
