package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	users    interfaces.UserStorage
	usage    interfaces.UsageStorage
	settings interfaces.SettingsStorage
	kv       interfaces.KeyValueStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManagerWithDB(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManagerWithDB(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		users:    NewUserStorage(db, logger),
		usage:    NewUsageStorage(db, logger),
		settings: NewSettingsStorage(db, logger),
		kv:       NewKVStorage(db, logger),
		logger:   logger,
	}
}

// UserStorage returns the user and subscription storage
func (m *Manager) UserStorage() interfaces.UserStorage {
	return m.users
}

// UsageStorage returns the usage event storage
func (m *Manager) UsageStorage() interfaces.UsageStorage {
	return m.usage
}

// SettingsStorage returns the settings storage
func (m *Manager) SettingsStorage() interfaces.SettingsStorage {
	return m.settings
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		m.logger.Debug().Msg("Closing Badger storage manager")
		return m.db.Close()
	}
	return nil
}
