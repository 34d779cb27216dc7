package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// UsageStorage implements the UsageStorage interface for Badger
type UsageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUsageStorage creates a new UsageStorage instance
func NewUsageStorage(db *BadgerDB, logger arbor.ILogger) interfaces.UsageStorage {
	return &UsageStorage{
		db:     db,
		logger: logger,
	}
}

func (s *UsageStorage) AppendUsage(ctx context.Context, event *models.UsageEvent) error {
	if event.ID == "" {
		return fmt.Errorf("usage event ID is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if err := s.db.Store().Insert(event.ID, event); err != nil {
		return fmt.Errorf("failed to append usage: %w", err)
	}
	return nil
}

func (s *UsageStorage) CountUsageSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var events []models.UsageEvent
	if err := s.db.Store().Find(&events, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return 0, fmt.Errorf("failed to find usage: %w", err)
	}

	count := 0
	for _, e := range events {
		if !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *UsageStorage) CountAllUsage(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.UsageEvent{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return int(count), nil
}
