package submission_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/models"
	"github.com/example/order-payment-service/internal/order"
	"github.com/example/order-payment-service/internal/payments"
	"github.com/example/order-payment-service/internal/submission"
)

type scriptedStep struct {
	status int
	body   string
	err    error
}

type scriptedClient struct {
	mu     sync.Mutex
	steps  []scriptedStep
	bodies [][]byte
}

func (c *scriptedClient) Send(_ context.Context, req *payments.Request) (*payments.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bodies = append(c.bodies, append([]byte(nil), req.Body...))
	idx := len(c.bodies) - 1
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	}
	step := c.steps[idx]
	if step.err != nil {
		return nil, step.err
	}
	return &payments.Response{StatusCode: step.status, Body: step.body, Headers: http.Header{"X-Trace": []string{"t"}}}, nil
}

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func normalized(t *testing.T, overrides map[order.Field]string) order.NormalizedRecord {
	t.Helper()
	values := map[order.Field]string{
		order.FieldOrderID:      "12345",
		order.FieldBillingName:  "Jane Doe",
		order.FieldTShirtSize:   "M",
		order.FieldPricePerItem: "$25.00",
	}
	for k, v := range overrides {
		values[k] = v
	}
	rec, ok := order.Validate(order.NewExtractionRecord(values)).Record()
	if !ok {
		t.Fatalf("fixture record failed validation")
	}
	return rec
}

func newOrchestrator(t *testing.T, client payments.Client, sleeper *recordingSleeper) *submission.Orchestrator {
	t.Helper()
	orch, err := submission.NewOrchestrator(submission.DefaultConfig(), submission.Dependencies{
		Client: client,
		Logger: zerolog.Nop(),
		Sleep:  sleeper.Sleep,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return orch
}

func equalDelays(got, want []time.Duration) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSubmitRetriesUntilSuccess(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		{status: http.StatusServiceUnavailable},
		{status: http.StatusServiceUnavailable},
		{status: http.StatusOK, body: `{"payment_id":"p1"}`},
	}}
	sleeper := &recordingSleeper{}

	out := newOrchestrator(t, client, sleeper).Submit(context.Background(), normalized(t, nil))

	if out.Kind != models.OutcomeSuccess {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Body != `{"payment_id":"p1"}` {
		t.Fatalf("unexpected body %q", out.Body)
	}
	if out.Attempts != 3 || client.Calls() != 3 {
		t.Fatalf("expected 3 attempts, outcome=%d calls=%d", out.Attempts, client.Calls())
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !equalDelays(sleeper.Delays(), want) {
		t.Fatalf("unexpected delays %v, want %v", sleeper.Delays(), want)
	}
}

func TestSubmitDoesNotRetryClientErrors(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{status: http.StatusBadRequest, body: `{"error":"bad"}`}}}
	sleeper := &recordingSleeper{}

	out := newOrchestrator(t, client, sleeper).Submit(context.Background(), normalized(t, nil))

	if out.Kind != models.OutcomeSubmissionFailed {
		t.Fatalf("expected submission failure, got %+v", out)
	}
	if client.Calls() != 1 || out.Attempts != 1 {
		t.Fatalf("expected exactly one attempt, calls=%d attempts=%d", client.Calls(), out.Attempts)
	}
	if len(sleeper.Delays()) != 0 {
		t.Fatalf("expected no backoff, got %v", sleeper.Delays())
	}
	if out.Failure.Retryable || out.Failure.Status != http.StatusBadRequest || out.Failure.Body != `{"error":"bad"}` {
		t.Fatalf("unexpected failure %+v", out.Failure)
	}
	if !errors.Is(out.Failure, submission.ErrPermanent) {
		t.Fatalf("expected permanent cause, got %v", out.Failure.Cause)
	}
}

type failingBody struct{ read bool }

func (b *failingBody) Read(p []byte) (int, error) {
	if !b.read {
		b.read = true
		return copy(p, `{"err`), nil
	}
	return 0, errors.New("connection reset by peer")
}

func (b *failingBody) Close() error { return nil }

type statusDoer struct {
	mu     sync.Mutex
	status int
	calls  int
}

func (d *statusDoer) Do(*http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return &http.Response{StatusCode: d.status, Header: http.Header{}, Body: &failingBody{}}, nil
}

func (d *statusDoer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestSubmitKeepsStatusWhenResponseBodyFails(t *testing.T) {
	doer := &statusDoer{status: http.StatusBadRequest}
	client, err := payments.NewHTTPClient("https://payments.example.com", "token", zerolog.Nop(), payments.WithHTTPDoer(doer))
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	sleeper := &recordingSleeper{}

	out := newOrchestrator(t, client, sleeper).Submit(context.Background(), normalized(t, nil))

	if doer.Calls() != 1 || out.Attempts != 1 {
		t.Fatalf("expected exactly one attempt, calls=%d attempts=%d", doer.Calls(), out.Attempts)
	}
	if len(sleeper.Delays()) != 0 {
		t.Fatalf("expected no backoff, got %v", sleeper.Delays())
	}
	if out.Failure == nil || out.Failure.Retryable || out.Failure.Status != http.StatusBadRequest {
		t.Fatalf("expected non-retryable 400 failure, got %+v", out.Failure)
	}
}

func TestSubmitExhaustsRetries(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{status: http.StatusInternalServerError, body: "boom"}}}
	sleeper := &recordingSleeper{}

	out := newOrchestrator(t, client, sleeper).Submit(context.Background(), normalized(t, nil))

	if out.Kind != models.OutcomeSubmissionFailed {
		t.Fatalf("expected submission failure, got %+v", out)
	}
	if client.Calls() != 4 || out.Attempts != 4 {
		t.Fatalf("expected 4 attempts, calls=%d attempts=%d", client.Calls(), out.Attempts)
	}
	if want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}; !equalDelays(sleeper.Delays(), want) {
		t.Fatalf("unexpected delays %v, want %v", sleeper.Delays(), want)
	}
	if !out.Failure.Retryable || out.Failure.Status != http.StatusInternalServerError || out.Failure.Body != "boom" {
		t.Fatalf("unexpected failure %+v", out.Failure)
	}
	if out.Failure.Headers.Get("X-Trace") != "t" {
		t.Fatalf("expected headers on failure, got %v", out.Failure.Headers)
	}
	if !errors.Is(out.Failure, submission.ErrTransient) {
		t.Fatalf("expected transient cause, got %v", out.Failure.Cause)
	}
}

func TestSubmitRetriesRateLimitAndNetworkErrors(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		{status: http.StatusTooManyRequests},
		{err: errors.New("connection reset by peer")},
		{status: http.StatusCreated, body: "ok"},
	}}
	sleeper := &recordingSleeper{}

	out := newOrchestrator(t, client, sleeper).Submit(context.Background(), normalized(t, nil))

	if !out.OK() || out.Attempts != 3 {
		t.Fatalf("expected success after 3 attempts, got %+v", out)
	}
}

func TestSubmitPayloadIsIdenticalAcrossAttempts(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{status: http.StatusBadGateway}}}
	sleeper := &recordingSleeper{}

	rec := normalized(t, map[order.Field]string{order.FieldConfirmationCode: "ABC123"})
	newOrchestrator(t, client, sleeper).Submit(context.Background(), rec)

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.bodies) != 4 {
		t.Fatalf("expected 4 bodies, got %d", len(client.bodies))
	}
	for i, body := range client.bodies[1:] {
		if !bytes.Equal(body, client.bodies[0]) {
			t.Fatalf("attempt %d body differs: %s vs %s", i+2, body, client.bodies[0])
		}
	}
	want := `{"name":"Jane Doe","amount":25.00,"tshirt_size":"M","id":"12345","confirmation_code":"ABC123"}`
	if string(client.bodies[0]) != want {
		t.Fatalf("unexpected payload %s", client.bodies[0])
	}
}

func TestSubmitPayloadBuildFailureIsNotRetried(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{status: http.StatusOK}}}
	sleeper := &recordingSleeper{}

	rec := normalized(t, map[order.Field]string{order.FieldPricePerItem: "$123456789012345678901.00"})
	out := newOrchestrator(t, client, sleeper).Submit(context.Background(), rec)

	if out.Kind != models.OutcomeSubmissionFailed {
		t.Fatalf("expected submission failure, got %+v", out)
	}
	if client.Calls() != 0 || out.Attempts != 0 {
		t.Fatalf("expected no attempts, calls=%d attempts=%d", client.Calls(), out.Attempts)
	}
	var buildErr *submission.PayloadBuildError
	if !errors.As(out.Failure, &buildErr) {
		t.Fatalf("expected PayloadBuildError, got %v", out.Failure.Cause)
	}
	if !errors.Is(out.Failure, submission.ErrPermanent) {
		t.Fatalf("expected payload build error to be permanent")
	}
}

func TestSubmitStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{status: http.StatusServiceUnavailable}}}
	sleeper := &recordingSleeper{err: context.Canceled}

	out := newOrchestrator(t, client, sleeper).Submit(context.Background(), normalized(t, nil))

	if out.Kind != models.OutcomeSubmissionFailed {
		t.Fatalf("expected submission failure, got %+v", out)
	}
	if client.Calls() != 1 {
		t.Fatalf("expected a single attempt, got %d", client.Calls())
	}
	if !errors.Is(out.Failure, context.Canceled) {
		t.Fatalf("expected context cancellation cause, got %v", out.Failure.Cause)
	}
}

func TestSubmitStopsWhenContextAlreadyCancelled(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{err: context.Canceled}}}
	sleeper := &recordingSleeper{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newOrchestrator(t, client, sleeper).Submit(ctx, normalized(t, nil))

	if out.Kind != models.OutcomeSubmissionFailed || out.Failure.Retryable {
		t.Fatalf("expected terminal non-retryable failure, got %+v", out)
	}
	if len(sleeper.Delays()) != 0 {
		t.Fatalf("expected no backoff after cancellation")
	}
}

func TestBackoffSchedule(t *testing.T) {
	orch, err := submission.NewOrchestrator(submission.Config{MaxRetries: 5, BaseDelay: 100 * time.Millisecond}, submission.Dependencies{Client: &scriptedClient{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[int]time.Duration{
		0: 0,
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		5: 1600 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := orch.Backoff(attempt); got != want {
			t.Fatalf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
	if orch.MaxAttempts() != 6 {
		t.Fatalf("expected 6 max attempts, got %d", orch.MaxAttempts())
	}
}

func TestBackoffSaturates(t *testing.T) {
	orch, err := submission.NewOrchestrator(submission.DefaultConfig(), submission.Dependencies{Client: &scriptedClient{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prev := orch.Backoff(1)
	for attempt := 2; attempt <= 70; attempt++ {
		got := orch.Backoff(attempt)
		if got < prev {
			t.Fatalf("Backoff(%d) = %v, smaller than Backoff(%d) = %v", attempt, got, attempt-1, prev)
		}
		prev = got
	}
	if orch.Backoff(64) <= 0 {
		t.Fatalf("expected a positive saturated delay, got %v", orch.Backoff(64))
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	if _, err := submission.NewOrchestrator(submission.DefaultConfig(), submission.Dependencies{}); err == nil {
		t.Fatalf("expected error when client is missing")
	}
	if _, err := submission.NewOrchestrator(submission.Config{MaxRetries: -1}, submission.Dependencies{Client: &scriptedClient{}}); err == nil {
		t.Fatalf("expected error for negative retries")
	}
	if _, err := submission.NewOrchestrator(submission.Config{MaxRetries: submission.MaxRetriesLimit + 1}, submission.Dependencies{Client: &scriptedClient{}}); err == nil {
		t.Fatalf("expected error for retries above the limit")
	}
}
