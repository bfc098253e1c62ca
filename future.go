package xkit

import (
	"context"
	"sync"
)

// Future is the single-resolution result of a wait registered with a Conn.
// Only the Conn that created a Future resolves it; callers consume it
// through Await or Done.
type Future struct {
	done chan struct{}

	mu  sync.Mutex
	set bool
	val interface{}
	err error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve records the outcome. A second resolution is a violation of the
// single-owner contract and panics.
func (f *Future) resolve(val interface{}, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		panic("xkit: future resolved twice")
	}
	f.set = true
	f.val = val
	f.err = err
	close(f.done)
}

// Done is closed once the future holds its result.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx ends. Cancellation only
// detaches the caller; the future may still resolve later for others.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.err
}

// Result reports the outcome without blocking. ok is false while the future
// is still pending.
func (f *Future) Result() (val interface{}, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.err, f.set
}
