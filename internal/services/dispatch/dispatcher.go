package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/ternarybob/huntbot/internal/services/workers"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTaskInProgress is returned when the requester already has a task queued or running
	ErrTaskInProgress = errors.New("task already in progress")
	// ErrQueueFull is returned when the bounded queue has no free slot
	ErrQueueFull = workers.ErrQueueFull
	// ErrWorkerCrashed resolves a handle whose worker panicked
	ErrWorkerCrashed = errors.New("worker crashed")
	// ErrDispatcherClosed resolves handles still pending at shutdown
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrInvalidTask is returned for a task with missing or invalid fields
	ErrInvalidTask = errors.New("invalid task")
)

// TaskRunner executes one task to a terminal outcome
type TaskRunner interface {
	Run(ctx context.Context, task models.AutomationTask) models.Outcome
}

// Dispatcher moves automation tasks off the conversational loop onto a worker pool.
// Each run holds one unit of a weighted semaphore; AcquireExclusive takes all units.
type Dispatcher struct {
	runner   TaskRunner
	pool     *workers.Pool
	sem      *semaphore.Weighted
	weight   int64
	validate *validator.Validate
	config   common.PipelineConfig
	events   interfaces.EventService
	logger   arbor.ILogger

	mu       sync.Mutex
	inflight map[int64]*Handle
	closed   bool
}

// NewDispatcher creates and starts a dispatcher
func NewDispatcher(runner TaskRunner, config common.PipelineConfig, events interfaces.EventService, logger arbor.ILogger) *Dispatcher {
	weight := int64(config.MaxConcurrency)
	if weight <= 0 {
		weight = 1
	}

	d := &Dispatcher{
		runner:   runner,
		pool:     workers.NewPool(int(weight), config.QueueSize, logger),
		sem:      semaphore.NewWeighted(weight),
		weight:   weight,
		validate: validator.New(),
		config:   config,
		events:   events,
		logger:   logger,
		inflight: make(map[int64]*Handle),
	}
	d.pool.Start()
	return d
}

// Validate checks the task fields and the video host
func (d *Dispatcher) Validate(task models.AutomationTask) error {
	if err := d.validate.Struct(task); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if _, err := common.NormalizeVideoURL(task.VideoURL, d.config.AllowedHosts); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return nil
}

// Submit validates and queues task. ctx supplies values only; the run is bounded by
// the task timeout and by Handle.Cancel.
func (d *Dispatcher) Submit(ctx context.Context, task models.AutomationTask) (*Handle, error) {
	if err := d.Validate(task); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDispatcherClosed
	}
	if _, busy := d.inflight[task.RequesterID]; busy {
		d.mu.Unlock()
		return nil, ErrTaskInProgress
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if d.config.TaskTimeout > 0 {
		var timeoutCancel context.CancelFunc
		taskCtx, timeoutCancel = context.WithTimeout(taskCtx, d.config.TaskTimeout.Std())
		parentCancel := cancel
		cancel = func() {
			timeoutCancel()
			parentCancel()
		}
	}

	h := newHandle(task, cancel)
	d.inflight[task.RequesterID] = h
	d.mu.Unlock()

	if err := d.pool.TrySubmit(d.job(taskCtx, h)); err != nil {
		d.forget(h)
		cancel()
		if errors.Is(err, workers.ErrPoolClosed) {
			return nil, ErrDispatcherClosed
		}
		return nil, err
	}

	d.logger.Info().
		Str("task_id", task.ID).
		Int64("requester_id", task.RequesterID).
		Msg("Task queued")

	return h, nil
}

func (d *Dispatcher) job(taskCtx context.Context, h *Handle) workers.Job {
	// The requester is free again as soon as the handle resolves
	settle := func(outcome models.Outcome, err error) {
		d.forget(h)
		h.resolve(outcome, err)
	}

	return func(poolCtx context.Context) {
		defer h.cancel()
		defer d.forget(h)
		defer common.RecoverPanic(d.logger, "task:"+h.ID(), func(r interface{}) {
			settle(models.Outcome{
				TaskID: h.ID(),
				Kind:   models.OutcomeTransientError,
				Reason: models.ReasonPanic,
			}, fmt.Errorf("%w: %v", ErrWorkerCrashed, r))
		})

		if poolCtx.Err() != nil {
			settle(models.Outcome{}, ErrDispatcherClosed)
			return
		}
		stop := context.AfterFunc(poolCtx, h.cancel)
		defer stop()

		if err := d.sem.Acquire(taskCtx, 1); err != nil {
			if poolCtx.Err() != nil {
				settle(models.Outcome{}, ErrDispatcherClosed)
				return
			}
			reason := models.ReasonCancelled
			if errors.Is(err, context.DeadlineExceeded) {
				reason = models.ReasonDeadline
			}
			settle(models.Outcome{TaskID: h.ID(), Kind: models.OutcomeTransientError, Reason: reason, Err: err}, nil)
			return
		}
		defer d.sem.Release(1)

		outcome := d.runner.Run(taskCtx, h.task)
		settle(outcome, nil)

		if outcome.Succeeded() && d.events != nil {
			err := d.events.Publish(context.Background(), interfaces.Event{
				Type: interfaces.EventTaskCompleted,
				Payload: interfaces.TaskCompletedPayload{
					TaskID:      h.ID(),
					RequesterID: h.task.RequesterID,
					Items:       len(outcome.Items),
				},
			})
			if err != nil {
				d.logger.Warn().Err(err).Str("task_id", h.ID()).Msg("Failed to publish task completed event")
			}
		}
	}
}

func (d *Dispatcher) forget(h *Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[h.task.RequesterID] == h {
		delete(d.inflight, h.task.RequesterID)
	}
}

// InFlight reports whether the requester has a task queued or running
func (d *Dispatcher) InFlight(requesterID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[requesterID]
	return ok
}

// CancelRequester cancels the requester's task, if any
func (d *Dispatcher) CancelRequester(requesterID int64) bool {
	d.mu.Lock()
	h, ok := d.inflight[requesterID]
	d.mu.Unlock()
	if ok {
		h.Cancel()
	}
	return ok
}

// AcquireExclusive waits until no task is running and blocks new runs until release is called
func (d *Dispatcher) AcquireExclusive(ctx context.Context) (func(), error) {
	if err := d.sem.Acquire(ctx, d.weight); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { d.sem.Release(d.weight) })
	}, nil
}

// Close stops accepting tasks, cancels running ones and resolves every pending handle
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.pool.Shutdown()
	d.logger.Info().Msg("Dispatcher closed")
}
