package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/willie68/go_tilefeed/internal/logging"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrStopped   = errors.New("worker pool is stopped")
)

// Job a unit of work, ctx is cancelled when the pool stops
type Job func(ctx context.Context)

// Pool a fixed number of workers on a bounded queue
type Pool struct {
	name string
	log  *slog.Logger

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock    sync.RWMutex
	stopped bool
}

// DefaultSize two workers per cpu
func DefaultSize() int {
	return 2 * runtime.NumCPU()
}

// New starts a pool with size workers, size <= 0 uses DefaultSize, queue <= 0 uses 64 jobs per worker
func New(name string, size, queue int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	if queue <= 0 {
		queue = size * 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		log:    logging.New("worker: " + name),
		jobs:   make(chan Job, queue),
		ctx:    ctx,
		cancel: cancel,
	}
	for range size {
		p.wg.Go(func() {
			for j := range p.jobs {
				p.run(j)
			}
		})
	}
	p.log.Debug("worker pool started", "workers", size, "queue", queue)
	return p
}

// Submit queues the job, never blocks
func (p *Pool) Submit(j Job) error {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels the context of all jobs and waits until the queue is drained.
// Queued jobs still run, with a cancelled context.
func (p *Pool) Stop() {
	p.lock.Lock()
	if p.stopped {
		p.lock.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	close(p.jobs)
	p.lock.Unlock()
	p.wg.Wait()
	p.log.Debug("worker pool stopped")
}

func (p *Pool) run(j Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job panicked", "panic", r)
		}
	}()
	j(p.ctx)
}
