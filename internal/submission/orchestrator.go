package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/metrics"
	"github.com/example/order-payment-service/internal/models"
	"github.com/example/order-payment-service/internal/order"
	"github.com/example/order-payment-service/internal/payments"
)

// Default retry policy: 3 retries (4 attempts) at 1s, 2s, 4s.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second

	// MaxRetriesLimit bounds Config.MaxRetries.
	MaxRetriesLimit = 10
)

// Config controls the retry schedule.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultConfig returns the standard retry policy.
func DefaultConfig() Config {
	return Config{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Dependencies collects the collaborators used by the orchestrator.
type Dependencies struct {
	Client payments.Client
	Logger zerolog.Logger
	// Sleep defaults to a timer that honours ctx.
	Sleep SleepFunc
	Now   func() time.Time
	// Headers are added to every request.
	Headers map[string]string
}

// Orchestrator performs one logical payment submission per Submit call with
// bounded exponential backoff between attempts.
type Orchestrator struct {
	cfg     Config
	client  payments.Client
	logger  zerolog.Logger
	sleep   SleepFunc
	now     func() time.Time
	headers map[string]string
}

// NewOrchestrator validates cfg and deps and returns an Orchestrator.
func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if cfg.MaxRetries < 0 {
		return nil, errors.New("submission: max retries cannot be negative")
	}
	if cfg.MaxRetries > MaxRetriesLimit {
		return nil, fmt.Errorf("submission: max retries cannot exceed %d", MaxRetriesLimit)
	}
	if cfg.BaseDelay < 0 {
		return nil, errors.New("submission: base delay cannot be negative")
	}
	if deps.Client == nil {
		return nil, errors.New("submission: payments client dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "submission").Logger()

	sleep := deps.Sleep
	if sleep == nil {
		sleep = wait
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	var headers map[string]string
	if len(deps.Headers) > 0 {
		headers = make(map[string]string, len(deps.Headers))
		for k, v := range deps.Headers {
			headers[k] = v
		}
	}

	return &Orchestrator{
		cfg:     cfg,
		client:  deps.Client,
		logger:  logger,
		sleep:   sleep,
		now:     now,
		headers: headers,
	}, nil
}

// MaxAttempts returns the total attempt bound (1 + retries).
func (o *Orchestrator) MaxAttempts() int { return o.cfg.MaxRetries + 1 }

// Backoff returns the delay after failed attempt k (k >= 1): base * 2^(k-1),
// saturating at the largest time.Duration.
func (o *Orchestrator) Backoff(attempt int) time.Duration {
	if attempt < 1 || o.cfg.BaseDelay <= 0 {
		return 0
	}
	d := o.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	return d
}

// Submit builds the payload once and sends it until the API accepts it, a
// non-retryable condition occurs, or the retry budget is spent. Every path
// ends in a terminal Outcome. Cancelling ctx ends the series with a
// non-retryable SubmissionFailed whose cause is the context error.
func (o *Orchestrator) Submit(ctx context.Context, rec order.NormalizedRecord) models.Outcome {
	payload, err := BuildPayload(rec)
	if err != nil {
		o.logger.Error().
			Object("record", rec).
			Err(err).
			Msg("submission: payload build failed; not retrying")
		return models.SubmissionFailed(&models.SubmissionError{Cause: err})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		buildErr := &PayloadBuildError{Price: rec.PricePerItem(), Err: err}
		o.logger.Error().
			Object("record", rec).
			Err(buildErr).
			Msg("submission: payload encoding failed; not retrying")
		return models.SubmissionFailed(&models.SubmissionError{Cause: buildErr})
	}

	req := &payments.Request{Body: body, Headers: o.headers}
	maxAttempts := o.MaxAttempts()
	logger := o.logger.With().Str("order_id", payload.ID).Logger()

	for attempt := 1; ; attempt++ {
		logger.Info().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Object("payload", payload).
			Msg("submission: sending payment")

		start := o.now()
		resp, sendErr := o.client.Send(ctx, req)
		duration := o.now().Sub(start)

		if ctxErr := ctx.Err(); ctxErr != nil && !resp.Success() {
			logger.Warn().
				Int("attempt", attempt).
				Err(ctxErr).
				Msg("submission: context cancelled during attempt")
			return models.SubmissionFailed(failure(false, attempt, resp, fmt.Errorf("submission interrupted: %w", ctxErr)))
		}

		decision := Classify(resp, sendErr)
		metrics.SubmissionAttempts.WithLabelValues(decision.Class.String()).Inc()
		metrics.SubmissionLatency.WithLabelValues(decision.Class.String()).Observe(duration.Seconds())

		event := logger.With().
			Int("attempt", attempt).
			Dur("duration", duration).
			Str("classification", decision.Class.String()).
			Logger()

		if decision.Class == ClassSuccess {
			event.Info().
				Int("status", resp.StatusCode).
				Str("body", payments.TruncateRaw(resp.Body, payments.DefaultRawBodyLimit)).
				Msg("submission: payment accepted")
			return models.Success(resp.Body, attempt)
		}

		logFailure(event, resp, decision.Err)

		if decision.Class == ClassNonRetryable {
			return models.SubmissionFailed(failure(false, attempt, resp, decision.Err))
		}
		if attempt >= maxAttempts {
			event.Error().Msg("submission: retries exhausted")
			return models.SubmissionFailed(failure(true, attempt, resp, decision.Err))
		}

		delay := o.Backoff(attempt)
		event.Info().Dur("backoff", delay).Msg("submission: scheduling retry")
		if err := o.sleep(ctx, delay); err != nil {
			event.Warn().Err(err).Msg("submission: context cancelled while waiting for retry")
			return models.SubmissionFailed(failure(false, attempt, resp, fmt.Errorf("submission interrupted: %w", err)))
		}
	}
}

func logFailure(logger zerolog.Logger, resp *payments.Response, err error) {
	ev := logger.Warn().Err(err)
	if resp != nil {
		ev = ev.Int("status", resp.StatusCode).
			Str("body", payments.TruncateRaw(resp.Body, payments.DefaultRawBodyLimit)).
			Interface("headers", resp.Headers)
	}
	ev.Msg("submission: attempt failed")
}

func failure(retryable bool, attempts int, resp *payments.Response, cause error) *models.SubmissionError {
	f := &models.SubmissionError{
		Retryable: retryable,
		Attempts:  attempts,
		Cause:     cause,
	}
	if resp != nil {
		f.Status = resp.StatusCode
		f.Body = resp.Body
		f.Headers = resp.Headers.Clone()
	}
	return f
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
