package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stageflow/stageflow/pkg/channels/gochannel"
	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/events"
)

func TestWatermillEventBus_PublishAndSubscribe(t *testing.T) {
	publisher, subscriber, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(publisher, subscriber)

	received := make(chan *events.WorkflowPublished, 1)

	err = bus.Handle(events.WorkflowPublishedEvent, func(_ context.Context, event any) error {
		published, ok := event.(*events.WorkflowPublished)
		require.True(t, ok)

		received <- published

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	event := events.WorkflowPublished{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.WorkflowPublishedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: "wf-1",
		},
		Version: 2,
	}

	require.NoError(t, bus.Publish(ctx, "wf-1", event))

	select {
	case published := <-received:
		assert.Equal(t, "wf-1", published.WorkflowID)
		assert.Equal(t, int64(2), published.Version)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	publisher, subscriber, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(publisher, subscriber)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this type; the message is acked and dropped.
	event := events.WorkflowDeleted{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.WorkflowDeletedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: "wf-1",
		},
	}

	assert.NoError(t, bus.Publish(ctx, "wf-1", event))
}
