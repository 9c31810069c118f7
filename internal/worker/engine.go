package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/order-payment-service/internal/mailtext"
	"github.com/example/order-payment-service/internal/models"
	"github.com/example/order-payment-service/internal/payments"
	"github.com/example/order-payment-service/internal/pipeline"
)

// Config contains the runtime settings of the worker engine.
type Config struct {
	MsgMaxBytes       int
	WorkerConcurrency int
}

// Record represents a Kafka message delivered to the worker. It keeps the
// engine decoupled from the concrete consumer implementation.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	commit func(context.Context) error
}

// Commit acknowledges the record with the consumer it came from. Records
// without a bound commit function are acknowledged trivially.
func (r *Record) Commit(ctx context.Context) error {
	if r == nil || r.commit == nil {
		return nil
	}
	return r.commit(ctx)
}

// Clone returns a deep copy of the record so it can be safely shared with
// asynchronous goroutines.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	clone := *r
	clone.Key = cloneBytes(r.Key)
	clone.Value = cloneBytes(r.Value)
	if len(r.Headers) > 0 {
		clone.Headers = cloneHeaders(r.Headers)
	}

	return &clone
}

// Parser decodes a record value into an inbound email envelope.
type Parser interface {
	Parse(ctx context.Context, payload []byte) (models.InboundEmail, error)
}

// Processor runs one inbound email to a terminal outcome.
type Processor interface {
	Process(ctx context.Context, email models.InboundEmail) (models.Outcome, error)
}

// StatusPublisher publishes lifecycle updates for an inbound email.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// DLQPublisher writes failed emails to the dead-letter topic.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Parser          Parser
	Processor       Processor
	StatusPublisher StatusPublisher
	DLQPublisher    DLQPublisher
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Engine feeds Kafka records through the pipeline with bounded concurrency,
// reports status and DLQ events, and commits offsets once a record reaches a
// terminal outcome.
type Engine struct {
	cfg             Config
	parser          Parser
	processor       Processor
	statusPublisher StatusPublisher
	dlqPublisher    DLQPublisher
	logger          zerolog.Logger

	semaphore *semaphore.Weighted
	inflight  sync.WaitGroup

	now func() time.Time
}

// NewEngine constructs a worker engine. The configuration and dependencies are
// validated to prevent misconfiguration at startup.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.WorkerConcurrency < 1 {
		return nil, errors.New("worker: worker concurrency must be >= 1")
	}
	if cfg.MsgMaxBytes < 0 {
		return nil, errors.New("worker: msg max bytes cannot be negative")
	}
	if deps.Parser == nil {
		return nil, errors.New("worker: parser dependency is required")
	}
	if deps.Processor == nil {
		return nil, errors.New("worker: processor dependency is required")
	}
	if deps.StatusPublisher == nil {
		return nil, errors.New("worker: status publisher dependency is required")
	}
	if deps.DLQPublisher == nil {
		return nil, errors.New("worker: DLQ publisher dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker_engine").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Engine{
		cfg:             cfg,
		parser:          deps.Parser,
		processor:       deps.Processor,
		statusPublisher: deps.StatusPublisher,
		dlqPublisher:    deps.DLQPublisher,
		logger:          logger,
		semaphore:       semaphore.NewWeighted(int64(cfg.WorkerConcurrency)),
		now:             nowFunc,
	}, nil
}

// HandleRecord checks the record size, parses the envelope and schedules the
// pipeline on its own goroutine. Records that cannot be parsed are
// dead-lettered and committed without running the pipeline.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}

	messageID := string(record.Key)

	if e.cfg.MsgMaxBytes > 0 && len(record.Value) > e.cfg.MsgMaxBytes {
		err := fmt.Errorf("payload exceeds maximum size: got %d bytes, limit %d bytes", len(record.Value), e.cfg.MsgMaxBytes)
		e.logger.Warn().
			Str("message_id", messageID).
			Err(err).
			Msg("worker: record discarded because it exceeds configured size limit")
		e.rejectRecord(ctx, record, messageID, err)
		return
	}

	email, err := e.parser.Parse(ctx, record.Value)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn().
			Str("message_id", messageID).
			Err(err).
			Msg("worker: inbound envelope rejected")
		e.rejectRecord(ctx, record, messageID, err)
		return
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		e.logger.Error().
			Str("message_id", email.MessageID).
			Err(err).
			Msg("worker: failed to acquire concurrency semaphore")
		return
	}

	e.inflight.Add(1)
	go e.processRecord(ctx, record.Clone(), email)
}

// Wait blocks until every scheduled record has finished processing.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) processRecord(ctx context.Context, record *Record, email models.InboundEmail) {
	defer e.inflight.Done()
	defer e.semaphore.Release(1)

	logger := e.logger.With().
		Str("message_id", email.MessageID).
		Str("sender", email.Sender).
		Logger()

	if ctx.Err() != nil {
		logger.Warn().Msg("worker: context cancelled before processing began")
		return
	}

	e.publishStatus(ctx, models.StatusEvent{MessageID: email.MessageID, EventType: models.StatusEventReceived, Sender: email.Sender})

	outcome, err := e.processor.Process(ctx, email)

	if ctx.Err() != nil && !outcome.OK() {
		logger.Warn().
			Err(ctx.Err()).
			Msg("worker: context cancelled during processing; deferring commit for redelivery")
		return
	}

	switch {
	case errors.Is(err, pipeline.ErrSenderNotAllowed):
		e.publishStatus(ctx, models.StatusEvent{
			MessageID: email.MessageID,
			EventType: models.StatusEventIgnored,
			Sender:    email.Sender,
			Error:     err.Error(),
		})

	case err != nil:
		failureType := models.FailureTypePermanent
		var decodeErr *mailtext.DecodeError
		if errors.As(err, &decodeErr) {
			failureType = models.FailureTypeDecode
		}
		logger.Warn().Err(err).Str("failure_type", failureType).Msg("worker: pipeline did not run")
		e.publishStatus(ctx, models.StatusEvent{
			MessageID: email.MessageID,
			EventType: models.StatusEventFailed,
			Sender:    email.Sender,
			Error:     err.Error(),
		})
		e.publishDLQ(ctx, models.DLQRecord{
			MessageID:       email.MessageID,
			OriginalMessage: originalMessage(record.Value),
			FailureType:     failureType,
			LastError:       err.Error(),
		})

	default:
		e.reportOutcome(ctx, record, email, outcome)
	}

	e.commitRecord(ctx, record)
}

func (e *Engine) reportOutcome(ctx context.Context, record *Record, email models.InboundEmail, outcome models.Outcome) {
	event := models.StatusEvent{
		MessageID: email.MessageID,
		Sender:    email.Sender,
		OrderID:   outcome.OrderID,
		Outcome:   outcome.Kind,
		Attempts:  outcome.Attempts,
	}

	switch outcome.Kind {
	case models.OutcomeSuccess:
		event.EventType = models.StatusEventSubmitted
		event.Response = payments.TruncateRaw(outcome.Body, payments.DefaultRawBodyLimit)
		e.publishStatus(ctx, event)

	case models.OutcomeValidationFailed:
		event.EventType = models.StatusEventRejected
		event.Errors = outcome.Errors
		e.publishStatus(ctx, event)
		e.publishDLQ(ctx, models.DLQRecord{
			MessageID:       email.MessageID,
			OriginalMessage: originalMessage(record.Value),
			FailureType:     models.FailureTypeValidation,
			LastError:       outcome.Err().Error(),
			Errors:          outcome.Errors,
		})

	default:
		event.EventType = models.StatusEventFailed
		dlq := models.DLQRecord{
			MessageID:       email.MessageID,
			OriginalMessage: originalMessage(record.Value),
			Attempts:        outcome.Attempts,
			FailureType:     models.FailureTypePermanent,
			LastError:       outcome.Err().Error(),
		}
		if f := outcome.Failure; f != nil {
			event.Status = f.Status
			event.Response = payments.TruncateRaw(f.Body, payments.DefaultRawBodyLimit)
			dlq.LastStatus = f.Status
			dlq.LastBody = event.Response
			if f.Retryable {
				dlq.FailureType = models.FailureTypeTransient
			}
		}
		event.Error = dlq.LastError
		e.publishStatus(ctx, event)
		e.publishDLQ(ctx, dlq)
	}
}

func (e *Engine) rejectRecord(ctx context.Context, record *Record, messageID string, err error) {
	e.publishStatus(ctx, models.StatusEvent{MessageID: messageID, EventType: models.StatusEventFailed, Error: err.Error()})
	e.publishDLQ(ctx, models.DLQRecord{
		MessageID:       messageID,
		OriginalMessage: originalMessage(record.Value),
		FailureType:     models.FailureTypeValidation,
		LastError:       err.Error(),
	})
	e.commitRecord(ctx, record)
}

func (e *Engine) publishStatus(ctx context.Context, event models.StatusEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if err := e.statusPublisher.PublishStatus(ctx, event); err != nil {
		e.logger.Error().
			Str("message_id", event.MessageID).
			Str("event", event.EventType).
			Err(err).
			Msg("worker: failed to publish status event")
	}
}

func (e *Engine) publishDLQ(ctx context.Context, record models.DLQRecord) {
	now := e.now()
	if record.FirstFailedAt.IsZero() {
		record.FirstFailedAt = now
	}
	if record.LastAttemptAt.IsZero() {
		record.LastAttemptAt = now
	}
	if err := e.dlqPublisher.PublishDLQ(ctx, record); err != nil {
		e.logger.Error().
			Str("message_id", record.MessageID).
			Str("failure_type", record.FailureType).
			Err(err).
			Msg("worker: failed to publish DLQ record")
	}
}

func (e *Engine) commitRecord(ctx context.Context, record *Record) {
	if err := record.Commit(ctx); err != nil {
		e.logger.Error().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: failed to commit record offset")
	}
}

// originalMessage returns value when it is valid JSON so the DLQ record can
// embed it verbatim.
func originalMessage(value []byte) json.RawMessage {
	if len(value) == 0 || !json.Valid(value) {
		return nil
	}
	return json.RawMessage(cloneBytes(value))
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}

func cloneHeaders(headers map[string][]byte) map[string][]byte {
	if len(headers) == 0 {
		return nil
	}
	clone := make(map[string][]byte, len(headers))
	for k, v := range headers {
		clone[k] = cloneBytes(v)
	}
	return clone
}
