package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vmunix/mvarr/internal/library"
)

// Task is one unit of download work handed to the pool.
type Task struct {
	Artist *library.Artist
	Video  *library.Video

	// done is called exactly once, after the task reaches a terminal or
	// retryable outcome.
	done func()
}

// Pool runs download tasks on a fixed number of workers over a bounded
// queue. When the queue is full, Submit blocks instead of growing it, which
// throttles sweep admission to what the workers can absorb.
type Pool struct {
	workers int
	handler func(ctx context.Context, t Task)
	tasks   chan Task
	wg      sync.WaitGroup
	log     *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool creates a pool. handler resolves one task; it must not panic.
func NewPool(workers, queueSize int, handler func(ctx context.Context, t Task), log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		workers: workers,
		handler: handler,
		tasks:   make(chan Task, queueSize),
		log:     log,
	}
}

// Start launches the workers. ctx cancellation stops new fetch work; tasks
// already picked up still resolve to an outcome so no claim is abandoned.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			log := p.log.With("worker", id)
			for t := range p.tasks {
				log.Debug("task started", "video_id", t.Video.ID)
				p.handler(ctx, t)
				if t.done != nil {
					t.done()
				}
			}
		}(i)
	}
}

// Submit enqueues a task, blocking while the queue is full.
// Returns ctx.Err() if the context is canceled before a slot frees.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	select {
	case p.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue and waits for in-flight tasks to resolve.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
}
