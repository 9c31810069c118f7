// Package consumer reads inbound emails from Kafka through a consumer group.
//
// The worker processes records of one partition concurrently, so they can
// finish out of order. An offset is marked only once it and every earlier
// offset dispatched from the same claim have been acknowledged. A record that
// is never acknowledged, for example because shutdown interrupted it, holds
// its partition back and is redelivered after a restart or rebalance.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const (
	clientID     = "order-payment-consumer"
	retryBackoff = time.Second
)

// Handler is invoked for every record delivered by the consumer.
type Handler func(ctx context.Context, record *Record) error

// Option customises the consumer during construction.
type Option func(*options)

type options struct {
	config *sarama.Config
}

// WithConfig supplies a Sarama config. It is copied, and the commit mode is
// applied on the copy.
func WithConfig(cfg *sarama.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// Record is one inbound Kafka message.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	session sarama.ConsumerGroupSession
	offsets *partitionOffsets

	mu    sync.Mutex
	acked bool
}

// Consumer runs a consumer group and acknowledges records on request.
type Consumer struct {
	logger  zerolog.Logger
	group   sarama.ConsumerGroup
	groupID string
	// flushOnAck commits marked offsets synchronously instead of leaving them
	// to the auto-commit interval.
	flushOnAck bool

	mu      sync.RWMutex
	handler Handler
	cancel  context.CancelFunc
	ready   bool

	wg       sync.WaitGroup
	errsDone chan struct{}
}

// New joins groupID on brokers. With commitOnSuccessOnly auto-commit is
// disabled and every acknowledgement that advances a partition is committed
// immediately.
func New(brokers []string, groupID string, logger zerolog.Logger, commitOnSuccessOnly bool, opts ...Option) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka consumer: at least one broker is required")
	}
	if groupID == "" {
		return nil, errors.New("kafka consumer: group id is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	settings := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	group, err := sarama.NewConsumerGroup(brokers, groupID, groupConfig(settings.config, commitOnSuccessOnly))
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: create consumer group: %w", err)
	}

	c := &Consumer{
		logger:     logger,
		group:      group,
		groupID:    groupID,
		flushOnAck: commitOnSuccessOnly,
		errsDone:   make(chan struct{}),
	}
	go c.logGroupErrors()
	return c, nil
}

// Consume joins the group for topics and hands each record to handler. It
// rejoins after rebalances and transient errors, and returns when ctx is done
// or the group is closed.
func (c *Consumer) Consume(ctx context.Context, topics []string, handler Handler) error {
	if len(topics) == 0 {
		return errors.New("kafka consumer: at least one topic is required")
	}
	if handler == nil {
		return errors.New("kafka consumer: handler is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.handler = handler
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	defer c.wg.Done()

	gh := &groupHandler{consumer: c}
	for {
		err := c.group.Consume(ctx, topics, gh)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			c.logger.Error().Err(err).Strs("topics", topics).Msg("kafka consumer: session failed; rejoining")
			timer := time.NewTimer(retryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Commit acknowledges record. Acknowledging twice is a no-op. The partition
// offset advances only across a contiguous run of acknowledged records.
func (c *Consumer) Commit(_ context.Context, record *Record) error {
	if record == nil {
		return errors.New("kafka consumer: record is required")
	}
	if record.session == nil || record.offsets == nil {
		return errors.New("kafka consumer: record was not delivered by a session")
	}

	record.mu.Lock()
	if record.acked {
		record.mu.Unlock()
		return nil
	}
	record.acked = true
	record.mu.Unlock()

	next := record.offsets.ack(record.Offset)
	if next < 0 {
		c.logger.Debug().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Msg("kafka consumer: acknowledgement held behind an earlier record")
		return nil
	}

	record.session.MarkOffset(record.Topic, record.Partition, next, "")
	if c.flushOnAck {
		record.session.Commit()
	}
	return nil
}

// IsReady reports whether the consumer currently holds a group session.
func (c *Consumer) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Close leaves the group and waits for Consume to return.
func (c *Consumer) Close() error {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	err := c.group.Close()
	c.wg.Wait()
	<-c.errsDone
	return err
}

func (c *Consumer) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

func (c *Consumer) logGroupErrors() {
	defer close(c.errsDone)
	for err := range c.group.Errors() {
		if err != nil {
			c.logger.Error().Err(err).Str("group_id", c.groupID).Msg("kafka consumer: group error")
		}
	}
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.consumer.setReady(true)
	h.consumer.logger.Info().
		Str("group_id", h.consumer.groupID).
		Int32("generation", session.GenerationID()).
		Msg("kafka consumer: session started")
	return nil
}

func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.consumer.setReady(false)
	h.consumer.logger.Info().
		Str("group_id", h.consumer.groupID).
		Int32("generation", session.GenerationID()).
		Msg("kafka consumer: session ended")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	offsets := newPartitionOffsets()
	defer func() {
		if n := offsets.outstanding(); n > 0 {
			h.consumer.logger.Info().
				Str("topic", claim.Topic()).
				Int32("partition", claim.Partition()).
				Int("unacknowledged", n).
				Msg("kafka consumer: claim released with unacknowledged records; they will be redelivered")
		}
	}()

	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			offsets.dispatched(msg.Offset)
			h.dispatch(session, offsets, msg)
		}
	}
}

func (h *groupHandler) dispatch(session sarama.ConsumerGroupSession, offsets *partitionOffsets, msg *sarama.ConsumerMessage) {
	h.consumer.mu.RLock()
	handler := h.consumer.handler
	h.consumer.mu.RUnlock()
	if handler == nil {
		h.consumer.logger.Error().Msg("kafka consumer: message received without handler")
		return
	}

	record := &Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       cloneBytes(msg.Key),
		Value:     cloneBytes(msg.Value),
		Timestamp: msg.Timestamp,
		Headers:   headerMap(msg.Headers),
		session:   session,
		offsets:   offsets,
	}

	if err := handler(session.Context(), record); err != nil {
		h.consumer.logger.Error().
			Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka consumer: handler failed")
	}
}

// groupConfig copies base (or a fresh config) and applies the commit mode.
func groupConfig(base *sarama.Config, manualCommit bool) *sarama.Config {
	var cfg *sarama.Config
	if base == nil {
		cfg = sarama.NewConfig()
		cfg.Version = sarama.V2_5_0_0
		cfg.ClientID = clientID
		// New groups start at the oldest retained offset.
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		copied := *base
		cfg = &copied
	}

	cfg.Consumer.Offsets.AutoCommit.Enable = !manualCommit
	cfg.Consumer.Return.Errors = true
	return cfg
}

func cloneBytes(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	return append([]byte(nil), src...)
}

func headerMap(headers []*sarama.RecordHeader) map[string][]byte {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(headers))
	for _, h := range headers {
		if h == nil || len(h.Key) == 0 {
			continue
		}
		out[string(h.Key)] = cloneBytes(h.Value)
	}
	return out
}
