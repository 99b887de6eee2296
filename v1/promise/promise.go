// Package promise provides a single-shot completion primitive. A Promise
// starts pending and settles exactly once, either fulfilled with a value or
// rejected with an error. Consumers select on Done and then read Result.
package promise

import (
	"context"
	"sync"
)

// Promise is a one-shot completion handle safe for concurrent use.
type Promise struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	value   any
	err     error
}

// New returns a pending Promise.
func New() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve fulfills the promise with v. It returns false when the promise
// has already settled, in which case v is discarded.
func (p *Promise) Resolve(v any) bool {
	return p.settle(v, nil)
}

// Reject settles the promise with err. It returns false when the promise
// has already settled, in which case err is discarded.
func (p *Promise) Reject(err error) bool {
	return p.settle(nil, err)
}

func (p *Promise) settle(v any, err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.value = v
	p.err = err
	p.mu.Unlock()
	close(p.done)
	return true
}

// Done returns a channel that is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether the promise has settled.
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Result returns the settled value or error. It is only meaningful after
// Done is closed; before that it returns zero values.
func (p *Promise) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Await blocks until the promise settles or ctx is cancelled.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
