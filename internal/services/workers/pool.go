package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
)

var (
	// ErrQueueFull is returned by TrySubmit when every queue slot is taken
	ErrQueueFull = errors.New("worker queue is full")
	// ErrPoolClosed is returned after Shutdown
	ErrPoolClosed = errors.New("worker pool is shutting down")
)

// Job represents a work item to be processed. ctx is cancelled on Shutdown.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of workers fed by a bounded queue
type Pool struct {
	jobs       chan Job
	maxWorkers int
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	closed     bool
	logger     arbor.ILogger
}

// NewPool creates a new worker pool
func NewPool(maxWorkers, queueSize int, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = maxWorkers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		jobs:       make(chan Job, queueSize),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Start begins the worker pool
func (p *Pool) Start() {
	p.logger.Info().
		Int("max_workers", p.maxWorkers).
		Int("queue_size", cap(p.jobs)).
		Msg("Starting worker pool")

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// TrySubmit queues a job without blocking
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown cancels the pool context and waits for the workers. Jobs still queued
// are run with the cancelled context so they can resolve themselves.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info().Msg("Worker pool shutdown complete")
}

// worker processes jobs from the queue until it is closed
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug().
		Int("worker_id", id).
		Msg("Worker started")

	for job := range p.jobs {
		p.run(id, job)
	}

	p.logger.Debug().
		Int("worker_id", id).
		Msg("Worker stopping - job queue closed")
}

func (p *Pool) run(id int, job Job) {
	defer common.RecoverPanic(p.logger, fmt.Sprintf("worker-%d", id), nil)
	job(p.ctx)
}
