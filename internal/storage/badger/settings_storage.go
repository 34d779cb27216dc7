package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const settingsKey = "settings"

// SettingsStorage implements the SettingsStorage interface for Badger.
// A single record holds every setting.
type SettingsStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSettingsStorage creates a new SettingsStorage instance
func NewSettingsStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SettingsStorage {
	return &SettingsStorage{
		db:     db,
		logger: logger,
	}
}

// GetSettings returns the stored settings, falling back to defaults when none were saved
func (s *SettingsStorage) GetSettings(ctx context.Context) (models.Settings, error) {
	var settings models.Settings
	err := s.db.Store().Get(settingsKey, &settings)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsStorage) SaveSettings(ctx context.Context, settings models.Settings) error {
	if err := s.db.Store().Upsert(settingsKey, &settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	s.logger.Debug().
		Int("free", settings.FreeDailyRequests).
		Int("premium", settings.PremiumDailyRequests).
		Int("price", settings.SubscriptionPrice).
		Msg("Settings saved")
	return nil
}
