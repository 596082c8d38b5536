package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// drainBatch bounds how many tasks one worker runs for a session before letting others in
const drainBatch = 16

// Task is one unit of work executed on a worker
type Task func(ctx context.Context)

// Mailbox is a per-session FIFO of tasks.
// A mailbox is in the ready queue at most once, so its tasks never run concurrently.
type Mailbox struct {
	mu     sync.Mutex
	tasks  []Task
	queued bool
}

// Pool runs mailboxes on a fixed number of workers
type Pool struct {
	workers int
	logger  *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	ready  []*Mailbox
	closed bool

	wg sync.WaitGroup
}

// NewPool creates a Pool with the given number of workers
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		workers: workers,
		logger:  logger.With(slog.String("component", "worker_pool")),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers; they run until Shutdown
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
	p.logger.Info("worker pool started", slog.Int("workers", p.workers))
}

// Submit appends task to mb and schedules mb if idle. Never blocks on running tasks.
func (p *Pool) Submit(mb *Mailbox, task Task) {
	mb.mu.Lock()
	mb.tasks = append(mb.tasks, task)
	schedule := !mb.queued
	mb.queued = true
	mb.mu.Unlock()

	if schedule {
		p.enqueue(mb)
	}
}

func (p *Pool) enqueue(mb *Mailbox) {
	p.mu.Lock()
	p.ready = append(p.ready, mb)
	p.mu.Unlock()
	p.cond.Signal()
}

// Shutdown stops accepting work, runs everything already queued and waits for the workers
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.ready) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.ready) == 0 {
			p.mu.Unlock()
			return
		}
		mb := p.ready[0]
		p.ready[0] = nil
		p.ready = p.ready[1:]
		p.mu.Unlock()

		if p.drain(ctx, mb) {
			p.enqueue(mb)
		}
	}
}

// drain runs up to drainBatch tasks of mb in order and reports whether more remain
func (p *Pool) drain(ctx context.Context, mb *Mailbox) bool {
	for i := 0; i < drainBatch; i++ {
		mb.mu.Lock()
		if len(mb.tasks) == 0 {
			mb.queued = false
			mb.mu.Unlock()
			return false
		}
		task := mb.tasks[0]
		mb.tasks[0] = nil
		mb.tasks = mb.tasks[1:]
		mb.mu.Unlock()

		p.run(ctx, task)
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.tasks) == 0 {
		mb.queued = false
		return false
	}
	return true
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if err := recover(); err != nil {
			p.logger.Error("panic recovered",
				slog.Any("error", err),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task(ctx)
}
