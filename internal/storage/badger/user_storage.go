package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrUserNotFound is returned when a user has never been registered
var ErrUserNotFound = errors.New("user not found")

// UserStorage implements the UserStorage interface for Badger
type UserStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUserStorage creates a new UserStorage instance
func NewUserStorage(db *BadgerDB, logger arbor.ILogger) interfaces.UserStorage {
	return &UserStorage{
		db:     db,
		logger: logger,
	}
}

func (s *UserStorage) CreateUserIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	if user == nil || user.ID == 0 {
		return false, fmt.Errorf("user ID is required")
	}
	if user.RegistrationDate.IsZero() {
		user.RegistrationDate = time.Now()
	}

	err := s.db.Store().Insert(user.ID, user)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}

	s.logger.Debug().Int64("user_id", user.ID).Str("username", user.Username).Msg("User registered")
	return true, nil
}

func (s *UserStorage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.Store().Get(userID, &user)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *UserStorage) ListUserIDs(ctx context.Context) ([]int64, error) {
	var users []models.User
	if err := s.db.Store().Find(&users, nil); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *UserStorage) CountUsers(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.User{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return int(count), nil
}

func (s *UserStorage) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		return fmt.Errorf("subscription ID is required")
	}
	if err := s.db.Store().Upsert(sub.ID, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *UserStorage) subscriptionsFor(userID int64) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := s.db.Store().Find(&subs, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("failed to find subscriptions: %w", err)
	}
	return subs, nil
}

// ActiveSubscription returns the covering subscription, premium before free and then the
// latest end date. Returns nil without error when nothing covers now.
func (s *UserStorage) ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	subs, err := s.subscriptionsFor(userID)
	if err != nil {
		return nil, err
	}

	var best *models.Subscription
	for i := range subs {
		if !subs[i].Active(now) {
			continue
		}
		if best == nil || outranks(subs[i], *best) {
			best = &subs[i]
		}
	}
	return best, nil
}

func outranks(a, b models.Subscription) bool {
	aPremium := a.Type == models.SubscriptionPremium
	bPremium := b.Type == models.SubscriptionPremium
	if aPremium != bPremium {
		return aPremium
	}
	return a.EndDate.After(b.EndDate)
}

func (s *UserStorage) CountActiveSubscribers(ctx context.Context, subType models.SubscriptionType, now time.Time) (int, error) {
	var subs []models.Subscription
	if err := s.db.Store().Find(&subs, badgerhold.Where("Type").Eq(subType)); err != nil {
		return 0, fmt.Errorf("failed to find subscriptions: %w", err)
	}

	users := make(map[int64]struct{})
	for _, sub := range subs {
		if sub.Active(now) {
			users[sub.UserID] = struct{}{}
		}
	}
	return len(users), nil
}

func (s *UserStorage) HasSubscription(ctx context.Context, userID int64) (bool, error) {
	count, err := s.db.Store().Count(&models.Subscription{}, badgerhold.Where("UserID").Eq(userID))
	if err != nil {
		return false, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count > 0, nil
}
