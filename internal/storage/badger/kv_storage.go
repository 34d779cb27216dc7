package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// KVStorage keeps small named values such as the rotated account password
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

func kvKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (s *KVStorage) load(key string) (*interfaces.KeyValuePair, error) {
	var pair interfaces.KeyValuePair
	if err := s.db.Store().Get(key, &pair); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, err
	}
	return &pair, nil
}

// Get returns the value stored under key
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	pair, err := s.load(kvKey(key))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return pair.Value, nil
}

// Set stores value under key, keeping the original creation time
func (s *KVStorage) Set(ctx context.Context, key string, value string, description string) error {
	k := kvKey(key)
	now := time.Now()

	pair := interfaces.KeyValuePair{Key: k, Value: value, Description: description, CreatedAt: now, UpdatedAt: now}
	if existing, err := s.load(k); err == nil {
		pair.CreatedAt = existing.CreatedAt
	}

	if err := s.db.Store().Upsert(k, &pair); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	s.logger.Debug().Str("key", k).Msg("Stored value")
	return nil
}

// Delete removes key; ErrKeyNotFound when absent
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(kvKey(key), &interfaces.KeyValuePair{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}
