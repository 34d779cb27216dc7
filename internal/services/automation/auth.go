package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
)

// ErrAuthFailure is returned when the login flow does not reach an authenticated page
var ErrAuthFailure = errors.New("authentication failed")

// CredentialSource yields the current account credentials
type CredentialSource interface {
	Current() models.Credentials
}

// Authenticator logs a browser session into the remote site
type Authenticator struct {
	locators Locators
	creds    CredentialSource
	timeouts Timeouts
	logger   arbor.ILogger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(locators Locators, creds CredentialSource, timeouts Timeouts, logger arbor.ILogger) *Authenticator {
	return &Authenticator{
		locators: locators,
		creds:    creds,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Authenticate fills the login form and waits until the page leaves the login URL.
// Every error wraps ErrAuthFailure.
func (a *Authenticator) Authenticate(ctx context.Context, session interfaces.BrowserSession) error {
	if err := a.authenticate(ctx, session); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	return nil
}

func (a *Authenticator) authenticate(ctx context.Context, session interfaces.BrowserSession) error {
	loginURL := a.locators.LoginURL()
	creds := a.creds.Current()

	if err := session.Navigate(ctx, loginURL); err != nil {
		return err
	}

	email, err := session.WaitFor(ctx, a.locators.EmailInput, a.timeouts.Element)
	if err != nil {
		return err
	}
	if err := session.Type(ctx, email, creds.Email); err != nil {
		return err
	}

	password, err := session.WaitFor(ctx, a.locators.PasswordInput, a.timeouts.Element)
	if err != nil {
		return err
	}
	if err := session.Type(ctx, password, creds.Password); err != nil {
		return err
	}

	submit, err := session.WaitFor(ctx, a.locators.LoginSubmit, a.timeouts.Element)
	if err != nil {
		return err
	}
	if err := session.Click(ctx, submit); err != nil {
		return err
	}

	err = pollUntil(ctx, a.timeouts.Login, a.timeouts.Poll, func(ctx context.Context) (bool, error) {
		current, err := session.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return current != "" && !strings.HasPrefix(current, loginURL), nil
	})
	if err != nil {
		return fmt.Errorf("still on login page: %w", err)
	}

	a.logger.Debug().Str("email", creds.Email).Msg("Authenticated")
	return nil
}
