// Package pipeline runs one inbound email through the allow-list, decoding,
// extraction, validation and payment submission, in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/allowlist"
	"github.com/example/order-payment-service/internal/extractor"
	"github.com/example/order-payment-service/internal/mailtext"
	"github.com/example/order-payment-service/internal/metrics"
	"github.com/example/order-payment-service/internal/models"
	"github.com/example/order-payment-service/internal/order"
)

var (
	// ErrSenderNotAllowed is returned when the sender is not on the allow-list.
	ErrSenderNotAllowed = errors.New("sender not allowed")
	// ErrNoSubmitter is returned by Process on an analysis-only pipeline.
	ErrNoSubmitter = errors.New("pipeline: no submitter configured")
)

// Submitter performs the payment submission for a validated record.
type Submitter interface {
	Submit(ctx context.Context, rec order.NormalizedRecord) models.Outcome
}

// Dependencies collects the pipeline collaborators. Allowlist, Decoder and
// Extractor fall back to allow-all, mailtext.Default and the default rules.
// Submitter may be nil for a pipeline that only analyses messages.
type Dependencies struct {
	Allowlist *allowlist.List
	Decoder   mailtext.Decoder
	Extractor *extractor.Extractor
	Submitter Submitter
	Logger    zerolog.Logger
}

// Pipeline holds no per-message state; Process may be called concurrently.
type Pipeline struct {
	allow     *allowlist.List
	decoder   mailtext.Decoder
	extractor *extractor.Extractor
	submitter Submitter
	logger    zerolog.Logger
}

// Analysis is the result of decoding, extracting and validating a message.
type Analysis struct {
	Text       string
	Extraction order.ExtractionRecord
	Result     order.ValidationResult
}

// New constructs a Pipeline.
func New(deps Dependencies) *Pipeline {
	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	decoder := deps.Decoder
	if decoder == nil {
		decoder = mailtext.Default
	}
	ext := deps.Extractor
	if ext == nil {
		ext = extractor.New()
	}

	return &Pipeline{
		allow:     deps.Allowlist,
		decoder:   decoder,
		extractor: ext,
		submitter: deps.Submitter,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Analyze decodes raw and runs extraction and validation. The only error it
// returns is a *mailtext.DecodeError.
func (p *Pipeline) Analyze(raw []byte) (Analysis, error) {
	text, err := p.decoder.Decode(raw)
	if err != nil {
		var decodeErr *mailtext.DecodeError
		if !errors.As(err, &decodeErr) {
			err = &mailtext.DecodeError{Err: err}
		}
		return Analysis{}, err
	}

	rec := p.extractor.Extract(text)
	for _, f := range order.Fields {
		result := "miss"
		if _, ok := rec.Get(f); ok {
			result = "hit"
		}
		metrics.ExtractionFields.WithLabelValues(string(f), result).Inc()
	}

	return Analysis{Text: text, Extraction: rec, Result: order.Validate(rec)}, nil
}

// Process runs one inbound email to a terminal outcome. A non-nil error means
// the pipeline did not run: the sender was rejected (ErrSenderNotAllowed) or
// the message could not be decoded (*mailtext.DecodeError).
func (p *Pipeline) Process(ctx context.Context, email models.InboundEmail) (models.Outcome, error) {
	logger := p.logger.With().
		Str("message_id", email.MessageID).
		Str("sender", email.Sender).
		Logger()

	if !p.allow.Allowed(email.Sender) {
		metrics.Rejections.WithLabelValues("sender").Inc()
		logger.Warn().Msg("pipeline: sender not on allow-list; ignoring message")
		return models.Outcome{}, fmt.Errorf("%w: %q", ErrSenderNotAllowed, email.Sender)
	}
	if p.submitter == nil {
		return models.Outcome{}, ErrNoSubmitter
	}

	analysis, err := p.Analyze(email.Raw)
	if err != nil {
		metrics.Rejections.WithLabelValues("decode").Inc()
		logger.Warn().Err(err).Msg("pipeline: message could not be decoded")
		return models.Outcome{}, err
	}

	logger.Debug().
		Object("extraction", analysis.Extraction).
		Msg("pipeline: fields extracted")

	rec, ok := analysis.Result.Record()
	if !ok {
		errs := analysis.Result.Errors()
		for _, reason := range errs {
			metrics.ValidationFailures.WithLabelValues(reason).Inc()
		}
		metrics.Outcomes.WithLabelValues(string(models.OutcomeValidationFailed)).Inc()
		logger.Warn().
			Strs("errors", errs).
			Object("extraction", analysis.Extraction).
			Msg("pipeline: validation failed; not submitting")
		return models.ValidationFailed(errs), nil
	}

	outcome := p.submitter.Submit(ctx, rec)
	outcome.OrderID = rec.OrderID()
	metrics.Outcomes.WithLabelValues(string(outcome.Kind)).Inc()

	ev := logger.Info()
	if !outcome.OK() {
		ev = logger.Error().Err(outcome.Err())
	}
	ev.Str("order_id", rec.OrderID()).
		Str("outcome", string(outcome.Kind)).
		Int("attempts", outcome.Attempts).
		Msg("pipeline: message processed")

	return outcome, nil
}
