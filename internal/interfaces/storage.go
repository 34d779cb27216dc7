package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/huntbot/internal/models"
)

// UserStorage persists users and their subscriptions
type UserStorage interface {
	// CreateUserIfAbsent inserts the user; returns true when the user is new
	CreateUserIfAbsent(ctx context.Context, user *models.User) (bool, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	CountUsers(ctx context.Context) (int, error)

	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	// ActiveSubscription returns the subscription covering now, premium first, nil if none
	ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	CountActiveSubscribers(ctx context.Context, subType models.SubscriptionType, now time.Time) (int, error)
	HasSubscription(ctx context.Context, userID int64) (bool, error)
}

// UsageStorage persists usage events for quota accounting
type UsageStorage interface {
	AppendUsage(ctx context.Context, event *models.UsageEvent) error
	CountUsageSince(ctx context.Context, userID int64, since time.Time) (int, error)
	CountAllUsage(ctx context.Context) (int, error)
}

// SettingsStorage persists admin-adjustable settings
type SettingsStorage interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// StorageManager exposes every storage the bot needs
type StorageManager interface {
	UserStorage() UserStorage
	UsageStorage() UsageStorage
	SettingsStorage() SettingsStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
