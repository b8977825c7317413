package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/kursgen/internal/models"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("job queue full")

	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// JobMessage is the unit of work handed from job creation to a worker.
type JobMessage struct {
	JobID   string
	Request models.ActivityRequest
}

// Handler processes one message. It must not return before the job has
// reached a terminal write attempt. Its context is never cancelled by Stop.
type Handler func(ctx context.Context, msg JobMessage)

// Pool runs a fixed number of workers over a bounded queue.
type Pool struct {
	queue   chan JobMessage
	workers int
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewPool creates a pool. Workers and queueSize default to 4 and 100.
func NewPool(workers, queueSize int, handler Handler) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:   make(chan JobMessage, queueSize),
		workers: workers,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopped {
		return
	}
	p.running = true

	for i := range p.workers {
		p.wg.Add(1)
		go p.work(i)
	}
	slog.Info("worker pool started", "workers", p.workers, "queue_size", cap(p.queue))
}

// Submit enqueues msg without blocking.
func (p *Pool) Submit(msg JobMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued messages.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Stop keeps workers from picking up new messages and waits for in-flight
// jobs to finish. Running handlers are not cancelled. Messages still queued
// are dropped and their jobs stay PENDING.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	if n := len(p.queue); n > 0 {
		slog.Warn("worker pool stopped with queued jobs", "count", n)
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for {
		// Cancellation wins over a non-empty queue.
		if p.ctx.Err() != nil {
			return
		}
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.queue:
			slog.Debug("worker picked up job", "worker", id, "job_id", msg.JobID)
			p.handler(context.WithoutCancel(p.ctx), msg)
		}
	}
}
