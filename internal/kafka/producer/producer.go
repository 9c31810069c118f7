// Package producer writes the worker's status and DLQ events to Kafka.
//
// Every event is sent synchronously with acks from all in-sync replicas and
// is keyed by the inbound message id, so all events about one email land on
// the same partition in the order they were produced.
package producer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/metrics"
)

// Header keys attached to every event.
const (
	HeaderContentType = "content-type"
	HeaderEventType   = "event-type"

	contentTypeJSON = "application/json"
	clientID        = "order-payment-producer"
)

// Event is one JSON document bound for a topic.
type Event struct {
	Topic string
	// MessageID keys the record. Envelopes rejected before a message id was
	// parsed are sent unkeyed.
	MessageID string
	EventType string
	Payload   []byte
}

// Option customises the producer during construction.
type Option func(*options)

type options struct {
	config *sarama.Config
}

// WithConfig supplies a Sarama config. It is copied, and the settings the
// event path depends on (sync delivery, acks, idempotence) are enforced on
// the copy.
func WithConfig(cfg *sarama.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// TopicState is the outcome of the latest publish to one topic.
type TopicState struct {
	LastSuccess time.Time
	LastFailure time.Time
	LastError   error
}

// Healthy reports whether the latest publish succeeded, or nothing was
// published yet.
func (s TopicState) Healthy() bool {
	return s.LastError == nil
}

// Producer publishes events and tracks per-topic delivery health.
type Producer struct {
	logger zerolog.Logger
	client sarama.Client
	syncer sarama.SyncProducer
	now    func() time.Time

	mu     sync.RWMutex
	topics map[string]TopicState
	closed bool
}

// New connects to brokers and returns a ready Producer.
func New(brokers []string, logger zerolog.Logger, opts ...Option) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: at least one broker is required")
	}

	settings := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	cfg := eventConfig(settings.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer: invalid config: %w", err)
	}

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: create client: %w", err)
	}
	sp, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kafka producer: create sync producer: %w", err)
	}

	return newProducer(client, sp, logger, time.Now), nil
}

func newProducer(client sarama.Client, sp sarama.SyncProducer, logger zerolog.Logger, now func() time.Time) *Producer {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Producer{
		logger: logger,
		client: client,
		syncer: sp,
		now:    now,
		topics: make(map[string]TopicState),
	}
}

// Publish sends ev and waits for the acknowledgement.
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	if ev.Topic == "" {
		return errors.New("kafka producer: topic is required")
	}
	if p.isClosed() {
		return errors.New("kafka producer: closed")
	}

	msg := &sarama.ProducerMessage{
		Topic: ev.Topic,
		Value: sarama.ByteEncoder(ev.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderContentType), Value: []byte(contentTypeJSON)},
			{Key: []byte(HeaderEventType), Value: []byte(ev.EventType)},
		},
	}
	if ev.MessageID != "" {
		msg.Key = sarama.StringEncoder(ev.MessageID)
	}

	partition, offset, err := p.syncer.SendMessage(msg)
	p.record(ev.Topic, err)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Topic, "error").Inc()
		return fmt.Errorf("kafka producer: publish %s to %s: %w", ev.EventType, ev.Topic, err)
	}
	metrics.EventsPublished.WithLabelValues(ev.Topic, "ok").Inc()

	p.logger.Debug().
		Str("topic", ev.Topic).
		Str("message_id", ev.MessageID).
		Str("event", ev.EventType).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("kafka producer: event published")
	return nil
}

func (p *Producer) record(topic string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.topics[topic]
	if err != nil {
		st.LastFailure = p.now()
		st.LastError = err
	} else {
		st.LastSuccess = p.now()
		st.LastError = nil
	}
	p.topics[topic] = st
}

// Topic returns the delivery state of topic.
func (p *Producer) Topic(topic string) TopicState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.topics[topic]
}

// TopicReady returns a readiness check that fails while the latest publish
// to topic has failed.
func (p *Producer) TopicReady(topic string) func() bool {
	return func() bool {
		return !p.isClosed() && p.Topic(topic).Healthy()
	}
}

// IsReady reports whether the producer is open, can reach a broker, and no
// topic's latest publish failed.
func (p *Producer) IsReady() bool {
	if p.isClosed() {
		return false
	}
	if p.client != nil && (p.client.Closed() || len(p.client.Brokers()) == 0) {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, st := range p.topics {
		if !st.Healthy() {
			return false
		}
	}
	return true
}

// Close releases the producer and its client. It is safe to call twice.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	if err := p.syncer.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Producer) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// eventConfig copies base (or a fresh config) and applies the delivery
// guarantees status and DLQ events rely on.
func eventConfig(base *sarama.Config) *sarama.Config {
	var cfg *sarama.Config
	if base == nil {
		cfg = sarama.NewConfig()
		cfg.Version = sarama.V2_5_0_0
		cfg.ClientID = clientID
		cfg.Producer.Retry.Max = 5
		cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	} else {
		copied := *base
		cfg = &copied
	}

	// Sync delivery needs both result channels.
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	// Events are acknowledged by every in-sync replica and never duplicated
	// by retries.
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	if cfg.Producer.Retry.Max < 1 {
		cfg.Producer.Retry.Max = 1
	}
	return cfg
}
