package worker

import (
	"context"

	"github.com/example/order-payment-service/internal/kafka/consumer"
)

// NewRecordFromConsumer constructs a worker record from a Kafka consumer
// record and binds commit, which the engine invokes once the record reaches a
// terminal outcome.
func NewRecordFromConsumer(rec *consumer.Record, commit func(context.Context) error) *Record {
	if rec == nil {
		return nil
	}

	return &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       cloneBytes(rec.Key),
		Value:     cloneBytes(rec.Value),
		Timestamp: rec.Timestamp,
		Headers:   cloneHeaders(rec.Headers),
		commit:    commit,
	}
}
