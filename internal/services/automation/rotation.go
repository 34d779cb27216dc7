package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
)

var (
	// ErrCodeRejected is returned when the site does not accept the verification code
	ErrCodeRejected = errors.New("verification code rejected")
	// ErrNoSuspendedRotation is returned when Confirm finds no live rotation for the requester
	ErrNoSuspendedRotation = errors.New("no password change in progress")
	// ErrRotationInProgress is returned when another requester has a rotation suspended
	ErrRotationInProgress = errors.New("another password change is in progress")
	// ErrInvalidPassword is returned for a new password outside the allowed length
	ErrInvalidPassword = errors.New("invalid password")
	// ErrRotationAborted is returned by Begin when the requester aborted it before it suspended
	ErrRotationAborted = errors.New("password change aborted")
)

// LeaseProvider grants exclusive use of the account against pipeline runs
type LeaseProvider interface {
	AcquireExclusive(ctx context.Context) (release func(), err error)
}

// CredentialStore is the process-wide credential holder
type CredentialStore interface {
	Current() models.Credentials
	Update(ctx context.Context, password string) error
}

type suspendedRotation struct {
	id          string
	requesterID int64
	session     interfaces.BrowserSession
	release     func()
	newPassword string
	deadline    time.Time
}

// startingRotation marks a Begin that has not suspended yet
type startingRotation struct {
	requesterID int64
	cancel      context.CancelFunc
	aborted     bool
	done        chan struct{}
}

// Rotator changes the account password in two conversational turns. Begin leaves a
// logged-in browser waiting on the verification-code form; Confirm finishes it.
// The exclusive lease is held for the whole suspension.
type Rotator struct {
	launcher interfaces.BrowserLauncher
	auth     *Authenticator
	locators Locators
	timeouts Timeouts
	config   common.RotationConfig
	leases   LeaseProvider
	creds    CredentialStore
	logger   arbor.ILogger

	mu       sync.Mutex
	pending  map[int64]*suspendedRotation
	starting *startingRotation
	now      func() time.Time
}

// NewRotator creates a new credential rotator
func NewRotator(launcher interfaces.BrowserLauncher, auth *Authenticator, locators Locators, timeouts Timeouts,
	config common.RotationConfig, leases LeaseProvider, creds CredentialStore, logger arbor.ILogger) *Rotator {
	return &Rotator{
		launcher: launcher,
		auth:     auth,
		locators: locators,
		timeouts: timeouts,
		config:   config,
		leases:   leases,
		creds:    creds,
		logger:   logger,
		pending:  make(map[int64]*suspendedRotation),
		now:      time.Now,
	}
}

// ValidatePassword applies the same rule the conversation enforces
func (r *Rotator) ValidatePassword(password string) error {
	if !common.ValidPassword(password, r.config.MinLength, r.config.MaxLength) {
		return fmt.Errorf("%w: must be %d-%d characters without spaces", ErrInvalidPassword, r.config.MinLength, r.config.MaxLength)
	}
	return nil
}

// Pending reports whether the requester has a suspended rotation
func (r *Rotator) Pending(requesterID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[requesterID]
	return ok
}

// Begin requests a verification code for newPassword and suspends the session.
// Any failure tears the session down and releases the lease before returning.
func (r *Rotator) Begin(ctx context.Context, requesterID int64, newPassword string) error {
	if err := r.ValidatePassword(newPassword); err != nil {
		return err
	}

	// A requester restarting the flow replaces their own rotation
	r.Abort(requesterID)
	if err := r.awaitStart(ctx, requesterID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	start := &startingRotation{requesterID: requesterID, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	busy := len(r.pending) > 0 || r.starting != nil
	if !busy {
		r.starting = start
	}
	r.mu.Unlock()
	if busy {
		return ErrRotationInProgress
	}
	defer func() {
		r.mu.Lock()
		r.starting = nil
		r.mu.Unlock()
		close(start.done)
	}()

	release, err := r.leases.AcquireExclusive(ctx)
	if err != nil {
		return r.beginFailed(start, fmt.Errorf("failed to acquire exclusive lease: %w", err))
	}
	if r.isAborted(start) {
		release()
		return ErrRotationAborted
	}

	id := common.NewRotationID()
	logger := r.logger.WithCorrelationId(id)

	session, err := r.launcher.Open(ctx)
	if err != nil {
		release()
		return r.beginFailed(start, err)
	}

	if err := r.requestCode(ctx, session, newPassword); err != nil {
		r.teardown(session, release, logger)
		return r.beginFailed(start, err)
	}

	entry := &suspendedRotation{
		id:          id,
		requesterID: requesterID,
		session:     session,
		release:     release,
		newPassword: newPassword,
		deadline:    r.now().Add(r.config.SuspendTimeout.Std()),
	}

	r.mu.Lock()
	aborted := start.aborted
	if !aborted {
		r.pending[requesterID] = entry
	}
	r.mu.Unlock()
	if aborted {
		logger.Info().Int64("requester_id", requesterID).Msg("Password change aborted before suspension")
		r.teardown(session, release, logger)
		return ErrRotationAborted
	}

	logger.Info().
		Int64("requester_id", requesterID).
		Str("deadline", entry.deadline.Format(time.RFC3339)).
		Msg("Password change suspended awaiting verification code")

	return nil
}

func (r *Rotator) isAborted(start *startingRotation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return start.aborted
}

func (r *Rotator) beginFailed(start *startingRotation, err error) error {
	if r.isAborted(start) {
		return ErrRotationAborted
	}
	return err
}

// awaitStart blocks while a Begin for the requester is still running
func (r *Rotator) awaitStart(ctx context.Context, requesterID int64) error {
	r.mu.Lock()
	start := r.starting
	r.mu.Unlock()
	if start == nil || start.requesterID != requesterID {
		return nil
	}

	select {
	case <-start.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Rotator) requestCode(ctx context.Context, session interfaces.BrowserSession, newPassword string) error {
	if err := r.auth.Authenticate(ctx, session); err != nil {
		return err
	}

	if err := session.Navigate(ctx, r.locators.ProfileURL()); err != nil {
		return err
	}

	if err := r.clickWhenReady(ctx, session, r.locators.ChangePasswordButton); err != nil {
		return err
	}
	if err := r.typeWhenReady(ctx, session, r.locators.NewPasswordInput, newPassword); err != nil {
		return err
	}
	if err := r.typeWhenReady(ctx, session, r.locators.RepeatPasswordInput, newPassword); err != nil {
		return err
	}
	if err := r.clickWhenReady(ctx, session, r.locators.SendCodeButton); err != nil {
		return err
	}

	// The code input only appears once the site accepted the request
	if _, err := session.WaitFor(ctx, r.locators.VerificationInput, r.timeouts.Element); err != nil {
		return fmt.Errorf("verification form did not appear: %w", err)
	}
	return nil
}

// Confirm submits the verification code and, once the site accepts it, updates the
// process-wide credentials. The session is torn down on every path. A code that
// arrives while Begin is still running waits for it to suspend.
func (r *Rotator) Confirm(ctx context.Context, requesterID int64, code string) error {
	if err := r.awaitStart(ctx, requesterID); err != nil {
		return err
	}

	entry := r.take(requesterID)
	if entry == nil {
		return ErrNoSuspendedRotation
	}

	logger := r.logger.WithCorrelationId(entry.id)
	defer r.teardown(entry.session, entry.release, logger)

	if r.now().After(entry.deadline) {
		return ErrNoSuspendedRotation
	}

	if err := r.typeWhenReady(ctx, entry.session, r.locators.VerificationInput, code); err != nil {
		return err
	}
	if err := r.clickWhenReady(ctx, entry.session, r.locators.ConfirmButton); err != nil {
		return err
	}

	err := pollUntil(ctx, r.timeouts.Confirm, r.timeouts.Poll, func(ctx context.Context) (bool, error) {
		visible, err := entry.session.Exists(ctx, r.locators.VerificationInput)
		return !visible, err
	})
	if errors.Is(err, interfaces.ErrWaitTimeout) {
		return ErrCodeRejected
	}
	if err != nil {
		return err
	}

	if err := r.creds.Update(ctx, entry.newPassword); err != nil {
		return fmt.Errorf("password changed remotely but failed to store it: %w", err)
	}

	logger.Info().Int64("requester_id", requesterID).Msg("Password change confirmed")
	return nil
}

// Abort tears down the requester's suspended rotation, if any. A Begin still in
// progress is cancelled and releases everything it acquired instead of suspending.
func (r *Rotator) Abort(requesterID int64) bool {
	entry := r.take(requesterID)
	if entry == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		start := r.starting
		if start == nil || start.requesterID != requesterID || start.aborted {
			return false
		}
		start.aborted = true
		start.cancel()
		r.logger.Info().Int64("requester_id", requesterID).Msg("Password change aborted while starting")
		return true
	}
	logger := r.logger.WithCorrelationId(entry.id)
	logger.Info().Int64("requester_id", requesterID).Msg("Password change aborted")
	r.teardown(entry.session, entry.release, logger)
	return true
}

// Sweep tears down every suspended rotation past its deadline
func (r *Rotator) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*suspendedRotation
	for id, entry := range r.pending {
		if now.After(entry.deadline) {
			expired = append(expired, entry)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range expired {
		logger := r.logger.WithCorrelationId(entry.id)
		logger.Info().Int64("requester_id", entry.requesterID).Msg("Password change expired")
		r.teardown(entry.session, entry.release, logger)
	}
	return len(expired)
}

// Close tears down every suspended rotation and cancels one still starting
func (r *Rotator) Close() {
	r.mu.Lock()
	if r.starting != nil && !r.starting.aborted {
		r.starting.aborted = true
		r.starting.cancel()
	}
	entries := make([]*suspendedRotation, 0, len(r.pending))
	for id, entry := range r.pending {
		entries = append(entries, entry)
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		r.teardown(entry.session, entry.release, r.logger.WithCorrelationId(entry.id))
	}
}

func (r *Rotator) take(requesterID int64) *suspendedRotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.pending[requesterID]
	delete(r.pending, requesterID)
	return entry
}

func (r *Rotator) teardown(session interfaces.BrowserSession, release func(), logger arbor.ILogger) {
	if err := session.Close(); err != nil {
		logger.Warn().Err(err).Msg("Browser session close failed")
	}
	release()
}

func (r *Rotator) clickWhenReady(ctx context.Context, session interfaces.BrowserSession, loc interfaces.Locator) error {
	el, err := session.WaitFor(ctx, loc, r.timeouts.Element)
	if err != nil {
		return err
	}
	return session.Click(ctx, el)
}

func (r *Rotator) typeWhenReady(ctx context.Context, session interfaces.BrowserSession, loc interfaces.Locator, text string) error {
	el, err := session.WaitFor(ctx, loc, r.timeouts.Element)
	if err != nil {
		return err
	}
	return session.Type(ctx, el, text)
}
