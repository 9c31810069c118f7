package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/order-payment-service/internal/kafka/producer"
	"github.com/example/order-payment-service/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// EventProducer captures the producer behaviour required by the publishers.
type EventProducer interface {
	Publish(ctx context.Context, ev producer.Event) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

func publishJSON(ctx context.Context, prod EventProducer, topic, kind, messageID, eventType string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal %s: %w", kind, err)
	}
	return prod.Publish(ctx, producer.Event{
		Topic:     topic,
		MessageID: messageID,
		EventType: eventType,
		Payload:   payload,
	})
}

// StatusPublisher emits status events to the status topic.
type StatusPublisher struct {
	producer EventProducer
	topic    string
}

// NewStatusPublisher constructs a StatusPublisher instance.
func NewStatusPublisher(prod EventProducer, topic string) *StatusPublisher {
	if prod == nil {
		return nil
	}
	return &StatusPublisher{producer: prod, topic: topic}
}

// PublishStatus writes the status event and waits for the acknowledgement.
func (p *StatusPublisher) PublishStatus(ctx context.Context, event models.StatusEvent) error {
	if p == nil {
		return errProducerNotInitialised
	}
	return publishJSON(ctx, p.producer, p.topic, "status event", event.MessageID, event.EventType, event)
}

// DLQPublisher writes DLQ records to the DLQ topic. The event type is
// "dlq." followed by the failure type.
type DLQPublisher struct {
	producer EventProducer
	topic    string
}

// NewDLQPublisher constructs a DLQPublisher instance.
func NewDLQPublisher(prod EventProducer, topic string) *DLQPublisher {
	if prod == nil {
		return nil
	}
	return &DLQPublisher{producer: prod, topic: topic}
}

// PublishDLQ writes the DLQ record and waits for the acknowledgement.
func (p *DLQPublisher) PublishDLQ(ctx context.Context, record models.DLQRecord) error {
	if p == nil {
		return errProducerNotInitialised
	}
	return publishJSON(ctx, p.producer, p.topic, "dlq record", record.MessageID, "dlq."+record.FailureType, record)
}
