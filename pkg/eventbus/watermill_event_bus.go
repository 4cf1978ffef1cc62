package eventbus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stageflow/stageflow/pkg/events"
	"github.com/stageflow/stageflow/pkg/otelhelper"
)

var tracer = otel.Tracer("stageflow.eventbus")

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	spanCtx, span := otelhelper.StartSpan(ctx, tracer, "eventbus consume",
		attribute.String(otelhelper.EventIDKey, msg.UUID),
		attribute.String("stageflow.event.type", string(eventType)),
	)
	defer span.End()

	handler, exists := eb.subscriptions[eventType]
	if !exists {
		msg.Ack()

		return
	}

	event := newEventPayload(eventType)
	if event == nil {
		otelhelper.SetError(span, errors.New("unknown event type"))
		msg.Nack()

		return
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		otelhelper.SetError(span, err)
		msg.Nack()

		return
	}

	if err := handler(spanCtx, event); err != nil {
		otelhelper.SetError(span, err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func newEventPayload(eventType events.EventType) any {
	switch eventType {
	case events.WorkflowCreatedEvent:
		return &events.WorkflowCreated{}
	case events.WorkflowUpdatedEvent:
		return &events.WorkflowUpdated{}
	case events.WorkflowDeletedEvent:
		return &events.WorkflowDeleted{}
	case events.WorkflowPublishedEvent:
		return &events.WorkflowPublished{}
	case events.WorkflowArchivedEvent:
		return &events.WorkflowArchived{}
	case events.GraphValidatedEvent:
		return &events.GraphValidated{}
	case events.GraphBatchAppliedEvent:
		return &events.GraphBatchApplied{}
	case events.TransitionEvaluatedEvent:
		return &events.TransitionEvaluated{}
	case events.CatalogEntryRegisteredEvent:
		return &events.CatalogEntryRegistered{}
	case events.CatalogEntryDeletedEvent:
		return &events.CatalogEntryDeleted{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
