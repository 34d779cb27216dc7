package models

import (
	"time"
)

// SubscriptionType is the plan a user is on
type SubscriptionType string

const (
	SubscriptionFree    SubscriptionType = "free"
	SubscriptionPremium SubscriptionType = "premium"
)

// DisplayName returns the human-readable plan name
func (t SubscriptionType) DisplayName() string {
	switch t {
	case SubscriptionPremium:
		return "Premium"
	default:
		return "Free"
	}
}

// User is a registered bot user
type User struct {
	ID               int64     `json:"id" badgerhold:"key"`
	Username         string    `json:"username"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	RegistrationDate time.Time `json:"registration_date"`
}

// Subscription is one plan period for a user
type Subscription struct {
	ID        string           `json:"id" badgerhold:"key"`
	UserID    int64            `json:"user_id" badgerhold:"index"`
	Type      SubscriptionType `json:"type"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
}

// Active reports whether the subscription covers t
func (s Subscription) Active(t time.Time) bool {
	return !t.Before(s.StartDate) && t.Before(s.EndDate)
}

// UsageEvent records one completed task for quota accounting
type UsageEvent struct {
	ID        string    `json:"id" badgerhold:"key"`
	UserID    int64     `json:"user_id" badgerhold:"index"`
	Kind      string    `json:"kind"`
	TaskID    string    `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings holds the admin-adjustable limits and price
type Settings struct {
	FreeDailyRequests    int `json:"free_daily_requests"`
	PremiumDailyRequests int `json:"premium_daily_requests"`
	SubscriptionPrice    int `json:"subscription_price"` // In the smallest currency unit (XTR stars)
	PremiumDays          int `json:"premium_days"`
}

// DefaultSettings returns the limits seeded on first start
func DefaultSettings() Settings {
	return Settings{
		FreeDailyRequests:    5,
		PremiumDailyRequests: 15,
		SubscriptionPrice:    100,
		PremiumDays:          30,
	}
}

// QuotaStatus is the result of a quota check
type QuotaStatus struct {
	Plan      SubscriptionType `json:"plan"`
	Used      int              `json:"used"`
	Limit     int              `json:"limit"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Allowed reports whether another request fits today's limit
func (q QuotaStatus) Allowed() bool {
	return q.Used < q.Limit
}

// BotStats aggregates admin statistics
type BotStats struct {
	TotalUsers    int `json:"total_users"`
	PremiumUsers  int `json:"premium_users"`
	TotalRequests int `json:"total_requests"`
}
