package payments

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scenario enumerates the supported mock behaviours.
type Scenario string

const (
	ScenarioSuccess     Scenario = "success"
	ScenarioUnavailable Scenario = "unavailable"
	ScenarioRateLimited Scenario = "rate_limited"
	ScenarioRejected    Scenario = "rejected"
	ScenarioTimeout     Scenario = "timeout"

	// HeaderScenario selects the scenario for a single request.
	HeaderScenario = "X-Mock-Payments-Scenario"
)

// MockOption customizes the behaviour of the mock client at construction time.
type MockOption func(*MockClient)

// WithLatencyRange overrides the simulated latency. Negative values are
// clamped to zero and if max < min it is coerced to min.
func WithLatencyRange(min, max time.Duration) MockOption {
	return func(c *MockClient) {
		if min < 0 {
			min = 0
		}
		if max < min {
			max = min
		}
		c.minLatency = min
		c.maxLatency = max
	}
}

// WithDefaultScenario configures the behaviour when a request does not carry
// an explicit scenario header.
func WithDefaultScenario(s Scenario) MockOption {
	return func(c *MockClient) {
		c.defaultScenario = s
	}
}

// WithRandomSeed swaps the RNG seed used for latency and payment ids.
func WithRandomSeed(seed int64) MockOption {
	return func(c *MockClient) {
		c.rnd = rand.New(rand.NewSource(seed)) // #nosec G404 -- deterministic seed for tests.
	}
}

// MockClient is an in-process stand-in for the payments API, used for local
// development and the CLI dry runs. It never touches the network.
type MockClient struct {
	logger          zerolog.Logger
	minLatency      time.Duration
	maxLatency      time.Duration
	defaultScenario Scenario

	mu    sync.Mutex
	rnd   *rand.Rand
	calls int
}

// NewMockClient constructs a mock client that succeeds by default with a
// latency between 10ms and 30ms.
func NewMockClient(logger zerolog.Logger, opts ...MockOption) *MockClient {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	c := &MockClient{
		logger:          logger,
		minLatency:      10 * time.Millisecond,
		maxLatency:      30 * time.Millisecond,
		defaultScenario: ScenarioSuccess,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Calls returns how many requests the mock has received.
func (c *MockClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Send simulates one API exchange.
func (c *MockClient) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || len(req.Body) == 0 {
		return nil, errors.New("payments mock: request body is required")
	}

	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if err := sleep(ctx, c.sampleLatency()); err != nil {
		return nil, err
	}

	scenario := c.resolveScenario(req)
	c.logger.Debug().
		Str("client", "mock_payments").
		Str("scenario", string(scenario)).
		Msg("mock payments api invoked")

	switch scenario {
	case ScenarioUnavailable:
		return jsonResponse(http.StatusServiceUnavailable, `{"error":"service unavailable"}`), nil
	case ScenarioRateLimited:
		resp := jsonResponse(http.StatusTooManyRequests, `{"error":"rate limited"}`)
		resp.Headers.Set("Retry-After", "1")
		return resp, nil
	case ScenarioRejected:
		return jsonResponse(http.StatusBadRequest, `{"error":"invalid payment"}`), nil
	case ScenarioTimeout:
		if err := sleep(ctx, c.maxLatency+c.minLatency); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("payments mock: %w", context.DeadlineExceeded)
	default:
		return jsonResponse(http.StatusCreated, fmt.Sprintf(`{"payment_id":%q,"status":"accepted"}`, c.nextID())), nil
	}
}

func (c *MockClient) resolveScenario(req *Request) Scenario {
	for k, v := range req.Headers {
		if !strings.EqualFold(k, HeaderScenario) {
			continue
		}
		switch s := Scenario(strings.ToLower(strings.TrimSpace(v))); s {
		case ScenarioUnavailable, ScenarioRateLimited, ScenarioRejected, ScenarioTimeout, ScenarioSuccess:
			return s
		}
	}
	return c.defaultScenario
}

func (c *MockClient) sampleLatency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxLatency <= c.minLatency {
		return c.minLatency
	}
	delta := c.maxLatency - c.minLatency
	return c.minLatency + time.Duration(c.rnd.Int63n(int64(delta)+1))
}

func (c *MockClient) nextID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("pay_%08x", c.rnd.Uint32())
}

func jsonResponse(status int, body string) *Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &Response{StatusCode: status, Body: body, Headers: h}
}

func sleep(ctx context.Context, d time.Duration) error {
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
