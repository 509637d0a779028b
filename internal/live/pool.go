package live

import (
	"context"
	"sync"
)

// Pool bounds how many exchange calls run at once across all market traders.
// Each trader still issues its own calls in order; the pool only caps the
// portfolio-wide concurrency.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool returns a pool allowing size concurrent calls, minimum one.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Do acquires a slot, runs fn inline, and releases the slot. It returns the
// context error when the slot cannot be acquired in time.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	fn()
	return nil
}

// Go runs fn on its own goroutine under the same concurrency cap.
func (p *Pool) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Wait blocks until every Go task has finished.
func (p *Pool) Wait() { p.wg.Wait() }
