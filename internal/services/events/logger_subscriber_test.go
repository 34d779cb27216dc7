package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/huntbot/internal/interfaces"
)

func TestNewLoggerSubscriber(t *testing.T) {
	subscriber := NewLoggerSubscriber(arbor.NewLogger())
	ctx := context.Background()

	err := subscriber(ctx, interfaces.Event{
		Type:    interfaces.EventTaskCompleted,
		Payload: interfaces.TaskCompletedPayload{TaskID: "t-1", RequesterID: 42, Items: 3},
	})
	assert.NoError(t, err)

	err = subscriber(ctx, interfaces.Event{Type: interfaces.EventCredentialsRotated})
	assert.NoError(t, err)
}

func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()
	service := NewService(logger)

	require.NoError(t, SubscribeLoggerToAllEvents(service, logger))
	assert.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventCredentialsRotated}))

	require.NoError(t, service.Close())
	assert.Error(t, SubscribeLoggerToAllEvents(service, logger))
}
