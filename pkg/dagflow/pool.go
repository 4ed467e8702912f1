package dagflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// pool runs tasks on a fixed set of workers draining a FIFO queue.
//
// Tasks are started in submission order. The scheduler submits a node only
// after all of its dependencies, so a waiting node never holds a worker that
// one of its dependencies is queued behind.
type pool struct {
	tasks  chan func()
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newPool(workers, queueSize int, logger *slog.Logger) *pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &pool{
		tasks:  make(chan func(), queueSize),
		logger: logger,
	}
	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

func (p *pool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool task panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}

// submit queues task, blocking while the queue is full.
func (p *pool) submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrSchedulerClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (p *pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// close stops accepting tasks and waits for queued ones to finish.
func (p *pool) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
