package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
)

// PasswordKey is the KV key holding a rotated account password
const PasswordKey = "account.password"

// Store holds the process-wide account credentials.
// A rotated password persisted in the KV store overrides the configured one.
type Store struct {
	mu     sync.RWMutex
	creds  models.Credentials
	kv     interfaces.KeyValueStorage
	events interfaces.EventService
	logger arbor.ILogger
}

// NewStore creates a credential store seeded with the configured credentials
func NewStore(initial models.Credentials, kv interfaces.KeyValueStorage, events interfaces.EventService, logger arbor.ILogger) *Store {
	return &Store{
		creds:  initial,
		kv:     kv,
		events: events,
		logger: logger,
	}
}

// Load applies a persisted rotated password, if one exists
func (s *Store) Load(ctx context.Context) error {
	password, err := s.kv.Get(ctx, PasswordKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load stored password: %w", err)
	}

	s.mu.Lock()
	s.creds.Password = password
	s.mu.Unlock()

	s.logger.Info().Msg("Using rotated account password from storage")
	return nil
}

// Current returns a copy of the credentials
func (s *Store) Current() models.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Update makes password current, notifies subscribers and persists it.
// Call only after the remote site accepted the password; a persist failure is
// returned but the in-memory password has already changed.
func (s *Store) Update(ctx context.Context, password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	s.mu.Lock()
	s.creds.Password = password
	email := s.creds.Email
	s.mu.Unlock()

	s.logger.Info().Str("email", email).Msg("Account password updated")

	if s.events != nil {
		if err := s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventCredentialsRotated}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish credentials rotated event")
		}
	}

	if err := s.kv.Set(ctx, PasswordKey, password, "Rotated remote account password"); err != nil {
		return fmt.Errorf("failed to persist password: %w", err)
	}
	return nil
}
