package dispatch

import (
	"context"
	"sync"

	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// Task is a unit of work run by the Pool. callerRuns reports whether it runs on the
// submitting goroutine because the queue was full.
type Task func(ctx context.Context, callerRuns bool)

// Pool is a fixed set of workers fed by a bounded queue. When the queue is full the
// submitting goroutine runs the task itself, which slows producers down instead of
// dropping work.
type Pool struct {
	tasks chan Task
	wg    sync.WaitGroup
	ctx   context.Context

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines reading from a queue of the given capacity.
func NewPool(workers, capacity int) *Pool {
	if workers <= 0 {
		logger.Warnf("Invalid dispatch worker count %d, using 1", workers)
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	p := &Pool{tasks: make(chan Task, capacity), ctx: context.Background()}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task, false)
	}
}

func (p *Pool) run(task Task, callerRuns bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Dispatch task panicked: %v", r)
		}
	}()
	task(p.ctx, callerRuns)
}

// Submit queues task. It returns true when the task ran on the caller because the
// queue was full or the pool was stopped.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	queued := false
	if !p.closed {
		select {
		case p.tasks <- task:
			queued = true
		default:
		}
	}
	p.mu.RUnlock()

	if queued {
		return false
	}
	logger.Debugf("Dispatch queue saturated; running task on the caller.")
	p.run(task, true)
	return true
}

// Stop stops accepting work and waits for queued tasks to finish.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
