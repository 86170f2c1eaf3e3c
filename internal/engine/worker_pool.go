package engine

import (
	"context"
	"sync"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue.
// Jobs carry their own completion signalling; the pool only schedules.
// Every accepted job is processed: workers drain the queue to empty even
// after the pool context is cancelled, so a caller waiting on job
// completion never waits on work the pool silently discarded. Callers that
// need a job done must fall back to running it inline when Submit returns
// false.
type workerPool[T any] struct {
	ctx     context.Context
	queue   chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity cap.
func newWorkerPool[T any](ctx context.Context, n, cap int, fn func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		ctx:     ctx,
		queue:   make(chan T, cap),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for t := range p.queue {
				p.process(p.ctx, t)
			}
		}()
	}
	return p
}

// Submit enqueues a job without blocking. It returns false when the queue
// is full or the pool has been drained; the caller runs the job itself.
func (p *workerPool[T]) Submit(t T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for all workers to finish the jobs
// already accepted. Submit after Drain returns false.
func (p *workerPool[T]) Drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
