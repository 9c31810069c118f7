package worker

import (
	"context"

	"github.com/example/order-payment-service/internal/kafka/consumer"
)

// KafkaHandler returns a consumer.Handler that converts consumer records into
// worker records bound to cons for commits and hands them to engine.
func KafkaHandler(engine *Engine, cons *consumer.Consumer) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}

		var commitFn func(context.Context) error
		if cons != nil {
			commitFn = func(c context.Context) error {
				return cons.Commit(c, rec)
			}
		}

		engine.HandleRecord(ctx, NewRecordFromConsumer(rec, commitFn))
		return nil
	}
}
