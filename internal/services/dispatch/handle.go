package dispatch

import (
	"context"
	"sync"

	"github.com/ternarybob/huntbot/internal/models"
)

// Handle tracks one submitted task. It resolves exactly once.
type Handle struct {
	task    models.AutomationTask
	done    chan struct{}
	once    sync.Once
	outcome models.Outcome
	err     error
	cancel  context.CancelFunc
}

func newHandle(task models.AutomationTask, cancel context.CancelFunc) *Handle {
	return &Handle{
		task:   task,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// ID returns the task ID
func (h *Handle) ID() string {
	return h.task.ID
}

// Task returns the submitted task
func (h *Handle) Task() models.AutomationTask {
	return h.task
}

// Done is closed once the handle resolves
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle resolves or ctx ends. err is set when the task could not
// produce an outcome (worker crash, dispatcher shutdown) or ctx ended first.
func (h *Handle) Wait(ctx context.Context) (models.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	case <-ctx.Done():
		return models.Outcome{}, ctx.Err()
	}
}

// Cancel aborts the task at its next bounded-wait checkpoint. Teardown still runs.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) resolve(outcome models.Outcome, err error) bool {
	resolved := false
	h.once.Do(func() {
		h.outcome = outcome
		h.err = err
		resolved = true
		close(h.done)
	})
	return resolved
}
