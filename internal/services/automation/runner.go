package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
)

type runState string

const (
	stateIdle          runState = "idle"
	stateSessionOpen   runState = "session_open"
	stateAuthenticated runState = "authenticated"
	stateExtracting    runState = "extracting"
	stateCompleted     runState = "completed"
	stateFailed        runState = "failed"
)

// Runner executes one task end to end: open a browser, log in, extract, tear down.
// Run always returns exactly one outcome and never panics.
type Runner struct {
	launcher  interfaces.BrowserLauncher
	auth      *Authenticator
	extractor *Extractor
	artifacts *ArtifactStore
	logger    arbor.ILogger
}

// NewRunner creates a new pipeline runner
func NewRunner(launcher interfaces.BrowserLauncher, auth *Authenticator, extractor *Extractor, artifacts *ArtifactStore, logger arbor.ILogger) *Runner {
	return &Runner{
		launcher:  launcher,
		auth:      auth,
		extractor: extractor,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Run executes the task. The session is closed exactly once on every path and the
// artifact directory survives only on success, owned by the returned outcome.
func (r *Runner) Run(ctx context.Context, task models.AutomationTask) (outcome models.Outcome) {
	start := time.Now()
	logger := r.logger.WithCorrelationId(task.ID)

	var (
		session   interfaces.BrowserSession
		artifacts *Artifacts
		state     = stateIdle
	)

	transition := func(next runState) {
		logger.Debug().Str("from", string(state)).Str("to", string(next)).Msg("Pipeline state")
		state = next
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Str("state", string(state)).
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", common.GetStackTrace()).
				Msg("Pipeline panicked")
			outcome = failure(models.OutcomeTransientError, models.ReasonPanic, fmt.Errorf("panic in %s: %v", state, rec))
		}

		if session != nil {
			if err := session.Close(); err != nil {
				logger.Warn().Err(err).Msg("Browser session close failed")
			}
		}

		if outcome.Kind != models.OutcomeSuccess {
			if artifacts != nil {
				if err := artifacts.Remove(); err != nil {
					logger.Warn().Err(err).Str("dir", artifacts.Dir).Msg("Failed to remove artifacts")
				}
			}
			outcome.ArtifactDir = ""
			outcome.Items = nil
			outcome.FullPageScreenshot = ""
			if state != stateFailed {
				transition(stateFailed)
			}
		}

		outcome.TaskID = task.ID
		outcome.Duration = time.Since(start)

		event := logger.Info()
		if outcome.Kind != models.OutcomeSuccess {
			event = logger.Warn().Str("reason", outcome.Reason).Err(outcome.Err)
		}
		event.
			Str("kind", string(outcome.Kind)).
			Int("items", len(outcome.Items)).
			Dur("duration", outcome.Duration).
			Msg("Pipeline finished")
	}()

	opened, err := r.launcher.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		return failure(models.OutcomeTransientError, models.ReasonLaunch, err)
	}
	session = opened
	transition(stateSessionOpen)

	if err := r.auth.Authenticate(ctx, session); err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		return failure(models.OutcomeAuthFailure, "", err)
	}
	transition(stateAuthenticated)

	artifacts, err = r.artifacts.Create(task.ID)
	if err != nil {
		return failure(models.OutcomeTransientError, "", err)
	}

	transition(stateExtracting)
	extraction, err := r.extractor.Extract(ctx, session, task, artifacts)
	if err != nil {
		return classifyExtractionError(ctx, err)
	}

	transition(stateCompleted)
	return models.Outcome{
		Kind:               models.OutcomeSuccess,
		Items:              extraction.Items,
		FullPageScreenshot: extraction.FullPageScreenshot,
		ResultsURL:         extraction.ResultsURL,
		ArtifactDir:        artifacts.Dir,
	}
}

func classifyExtractionError(ctx context.Context, err error) models.Outcome {
	switch {
	case ctx.Err() != nil:
		return cancelled(ctx)
	case errors.Is(err, ErrExtractionTimeout):
		return failure(models.OutcomeExtractionTimeout, "", err)
	case errors.Is(err, ErrNoResults):
		return failure(models.OutcomeNoResults, "", err)
	default:
		return failure(models.OutcomeTransientError, models.ReasonNavigation, err)
	}
}

func cancelled(ctx context.Context) models.Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failure(models.OutcomeTransientError, models.ReasonDeadline, ctx.Err())
	}
	return failure(models.OutcomeTransientError, models.ReasonCancelled, ctx.Err())
}

func failure(kind models.OutcomeKind, reason string, err error) models.Outcome {
	return models.Outcome{Kind: kind, Reason: reason, Err: err}
}
