package automation

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
)

// Timeouts bounds every wait in the automation steps
type Timeouts struct {
	Element   time.Duration
	Login     time.Duration
	Results   time.Duration
	RowRender time.Duration
	Confirm   time.Duration
	Poll      time.Duration
}

// TimeoutsFromConfig builds Timeouts from the pipeline and rotation config
func TimeoutsFromConfig(p common.PipelineConfig, r common.RotationConfig) Timeouts {
	return Timeouts{
		Element:   p.ElementTimeout.Std(),
		Login:     p.LoginTimeout.Std(),
		Results:   p.ResultsTimeout.Std(),
		RowRender: p.RowRenderTimeout.Std(),
		Confirm:   r.ConfirmTimeout.Std(),
		Poll:      p.PollInterval.Std(),
	}
}

// pollUntil evaluates cond every interval until it holds, timeout elapses or ctx ends.
// Condition errors are retried, except a closed session which ends the wait.
func pollUntil(ctx context.Context, timeout, interval time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond(ctx)
		if ok {
			return nil
		}
		if err != nil {
			if errors.Is(err, interfaces.ErrSessionClosed) {
				return err
			}
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if lastErr != nil {
				return errors.Join(interfaces.ErrWaitTimeout, lastErr)
			}
			return interfaces.ErrWaitTimeout
		case <-ticker.C:
		}
	}
}
