package runtime

import (
	"context"
	"sync"
)

// InflightTracker counts background work that shutdown must wait for, such as
// cache write-backs that outlive the request that triggered them.
type InflightTracker struct {
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

func NewInflightTracker() *InflightTracker {
	return &InflightTracker{}
}

// Begin registers one unit of work. The returned func marks it done and is
// safe to call more than once.
func (t *InflightTracker) Begin() func() {
	if t == nil {
		return func() {}
	}
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(t.finish)
	}
}

// Go runs fn on its own goroutine and tracks it until it returns.
func (t *InflightTracker) Go(fn func()) {
	done := t.Begin()
	go func() {
		defer done()
		fn()
	}()
}

func (t *InflightTracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending--
	if t.pending == 0 && t.idle != nil {
		close(t.idle)
		t.idle = nil
	}
}

// Pending reports the number of unfinished units.
func (t *InflightTracker) Pending() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Wait blocks until nothing is pending or ctx ends.
func (t *InflightTracker) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if t.pending == 0 {
		t.mu.Unlock()
		return nil
	}
	if t.idle == nil {
		t.idle = make(chan struct{})
	}
	idle := t.idle
	t.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
