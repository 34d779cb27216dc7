package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventTaskCompleted is published once per task that ended with a success outcome.
	// Payload: TaskCompletedPayload
	EventTaskCompleted EventType = "task_completed"
	// EventCredentialsRotated is published after the remote password change was confirmed.
	// Payload: nil (readers call the credential store)
	EventCredentialsRotated EventType = "credentials_rotated"
)

// TaskCompletedPayload identifies the requester whose task completed
type TaskCompletedPayload struct {
	TaskID      string
	RequesterID int64
	Items       int
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
