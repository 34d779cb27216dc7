package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
)

const (
	// UsageVideoAnalysis is the usage kind recorded for a completed extraction
	UsageVideoAnalysis = "video_analysis"

	freeSubscriptionDays = 365
)

// ErrInvalidValue is returned for a setting below 1
var ErrInvalidValue = errors.New("value must be a positive integer")

// Service keeps users, plans and daily usage limits
type Service struct {
	users    interfaces.UserStorage
	usage    interfaces.UsageStorage
	settings interfaces.SettingsStorage
	logger   arbor.ILogger
	now      func() time.Time

	settingsMu sync.Mutex
}

// NewService creates a new quota service
func NewService(users interfaces.UserStorage, usage interfaces.UsageStorage, settings interfaces.SettingsStorage, logger arbor.ILogger) *Service {
	return &Service{
		users:    users,
		usage:    usage,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Subscribe records usage whenever a task completes successfully
func (s *Service) Subscribe(events interfaces.EventService) error {
	return events.Subscribe(interfaces.EventTaskCompleted, s.handleTaskCompleted)
}

func (s *Service) handleTaskCompleted(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(interfaces.TaskCompletedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", event.Payload)
	}
	return s.RecordUsage(ctx, payload.RequesterID, UsageVideoAnalysis, payload.TaskID)
}

// RegisterUser stores the user once and gives a new user the free plan.
// Returns true when the user was new.
func (s *Service) RegisterUser(ctx context.Context, user models.User) (bool, error) {
	created, err := s.users.CreateUserIfAbsent(ctx, &user)
	if err != nil {
		return false, err
	}

	hasSub, err := s.users.HasSubscription(ctx, user.ID)
	if err != nil {
		return created, err
	}
	if hasSub {
		return created, nil
	}

	now := s.now()
	sub := &models.Subscription{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Type:      models.SubscriptionFree,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, freeSubscriptionDays),
	}
	if err := s.users.SaveSubscription(ctx, sub); err != nil {
		return created, err
	}

	s.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("New user registered")
	return created, nil
}

// CheckQuota returns the user's plan, today's usage and the daily limit
func (s *Service) CheckQuota(ctx context.Context, userID int64) (models.QuotaStatus, error) {
	now := s.now()

	sub, err := s.users.ActiveSubscription(ctx, userID, now)
	if err != nil {
		return models.QuotaStatus{}, err
	}

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return models.QuotaStatus{}, err
	}

	status := models.QuotaStatus{Plan: models.SubscriptionFree, Limit: settings.FreeDailyRequests}
	if sub != nil {
		status.ExpiresAt = sub.EndDate
		if sub.Type == models.SubscriptionPremium {
			status.Plan = models.SubscriptionPremium
			status.Limit = settings.PremiumDailyRequests
		}
	}

	used, err := s.usage.CountUsageSince(ctx, userID, startOfDay(now))
	if err != nil {
		return models.QuotaStatus{}, err
	}
	status.Used = used

	return status, nil
}

// RecordUsage appends one usage event
func (s *Service) RecordUsage(ctx context.Context, userID int64, kind, taskID string) error {
	event := &models.UsageEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		TaskID:    taskID,
		CreatedAt: s.now(),
	}
	if err := s.usage.AppendUsage(ctx, event); err != nil {
		return err
	}

	s.logger.Debug().Int64("user_id", userID).Str("kind", kind).Str("task_id", taskID).Msg("Usage recorded")
	return nil
}

// GrantPremium adds a premium period of the configured length. An active premium
// period is extended rather than overlapped.
func (s *Service) GrantPremium(ctx context.Context, userID int64) (*models.Subscription, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	current, err := s.users.ActiveSubscription(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	end := now
	if current != nil && current.Type == models.SubscriptionPremium {
		end = current.EndDate
	}

	sub := &models.Subscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      models.SubscriptionPremium,
		StartDate: now,
		EndDate:   end.AddDate(0, 0, settings.PremiumDays),
	}
	if err := s.users.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Str("until", sub.EndDate.Format(time.RFC3339)).
		Msg("Premium granted")
	return sub, nil
}

// Stats aggregates admin statistics
func (s *Service) Stats(ctx context.Context) (models.BotStats, error) {
	users, err := s.users.CountUsers(ctx)
	if err != nil {
		return models.BotStats{}, err
	}
	premium, err := s.users.CountActiveSubscribers(ctx, models.SubscriptionPremium, s.now())
	if err != nil {
		return models.BotStats{}, err
	}
	requests, err := s.usage.CountAllUsage(ctx)
	if err != nil {
		return models.BotStats{}, err
	}
	return models.BotStats{TotalUsers: users, PremiumUsers: premium, TotalRequests: requests}, nil
}

// Settings returns the current limits and price
func (s *Service) Settings(ctx context.Context) (models.Settings, error) {
	return s.settings.GetSettings(ctx)
}

// SetFreeLimit sets the free plan's daily request limit
func (s *Service) SetFreeLimit(ctx context.Context, n int) error {
	return s.updateSettings(ctx, n, func(st *models.Settings) { st.FreeDailyRequests = n })
}

// SetPremiumLimit sets the premium plan's daily request limit
func (s *Service) SetPremiumLimit(ctx context.Context, n int) error {
	return s.updateSettings(ctx, n, func(st *models.Settings) { st.PremiumDailyRequests = n })
}

// SetPrice sets the premium price in Telegram Stars
func (s *Service) SetPrice(ctx context.Context, n int) error {
	return s.updateSettings(ctx, n, func(st *models.Settings) { st.SubscriptionPrice = n })
}

func (s *Service) updateSettings(ctx context.Context, n int, apply func(*models.Settings)) error {
	if n < 1 {
		return ErrInvalidValue
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return err
	}
	apply(&settings)
	return s.settings.SaveSettings(ctx, settings)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
