package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/common"
	"github.com/ternarybob/huntbot/internal/interfaces"
	"github.com/ternarybob/huntbot/internal/models"
	"github.com/ternarybob/huntbot/internal/services/events"
	"github.com/ternarybob/huntbot/internal/storage/badger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	logger := arbor.NewLogger()
	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	return NewService(storage.UserStorage(), storage.UsageStorage(), storage.SettingsStorage(), logger)
}

func TestService_RegisterGivesFreePlan(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.RegisterUser(ctx, models.User{ID: 1, Username: "alice"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.RegisterUser(ctx, models.User{ID: 1, Username: "alice"})
	require.NoError(t, err)
	assert.False(t, created)

	status, err := s.CheckQuota(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionFree, status.Plan)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 0, status.Used)
	assert.True(t, status.Allowed())
	assert.True(t, status.ExpiresAt.After(time.Now().AddDate(0, 11, 0)))
}

func TestService_DailyLimit(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.RegisterUser(ctx, models.User{ID: 1})
	require.NoError(t, err)
	require.NoError(t, s.SetFreeLimit(ctx, 2))

	// Yesterday's usage does not count
	s.now = func() time.Time { return time.Now().AddDate(0, 0, -1) }
	require.NoError(t, s.RecordUsage(ctx, 1, UsageVideoAnalysis, "task_old"))
	s.now = time.Now

	require.NoError(t, s.RecordUsage(ctx, 1, UsageVideoAnalysis, "task_1"))
	status, err := s.CheckQuota(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Used)
	assert.True(t, status.Allowed())

	require.NoError(t, s.RecordUsage(ctx, 1, UsageVideoAnalysis, "task_2"))
	status, err = s.CheckQuota(ctx, 1)
	require.NoError(t, err)
	assert.False(t, status.Allowed())
}

func TestService_GrantPremium(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.RegisterUser(ctx, models.User{ID: 1})
	require.NoError(t, err)

	first, err := s.GrantPremium(ctx, 1)
	require.NoError(t, err)

	status, err := s.CheckQuota(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPremium, status.Plan)
	assert.Equal(t, 15, status.Limit)

	// A second purchase extends the running period
	second, err := s.GrantPremium(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.EndDate.AddDate(0, 0, 30).Unix(), second.EndDate.Unix())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalUsers)
	assert.Equal(t, 1, stats.PremiumUsers)
}

func TestService_SettingsValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetPrice(ctx, 0), ErrInvalidValue)
	assert.ErrorIs(t, s.SetPremiumLimit(ctx, -3), ErrInvalidValue)

	require.NoError(t, s.SetPrice(ctx, 250))
	require.NoError(t, s.SetPremiumLimit(ctx, 40))

	settings, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250, settings.SubscriptionPrice)
	assert.Equal(t, 40, settings.PremiumDailyRequests)
	assert.Equal(t, 5, settings.FreeDailyRequests)
}

func TestService_RecordsUsageOnTaskCompleted(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	bus := events.NewService(arbor.NewLogger())
	defer bus.Close()
	require.NoError(t, s.Subscribe(bus))

	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventTaskCompleted,
		Payload: interfaces.TaskCompletedPayload{TaskID: "task_1", RequesterID: 9, Items: 3},
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRequests)

	status, err := s.CheckQuota(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Used)
}
