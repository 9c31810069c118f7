package payments_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/payments"
)

type capturedRequest struct {
	method  string
	path    string
	headers http.Header
	body    string
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedRequest{
			method:  r.Method,
			path:    r.URL.Path,
			headers: r.Header.Clone(),
			body:    string(data),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestHTTPClientSendsPayload(t *testing.T) {
	srv, captured := newServer(t, http.StatusCreated, `{"ok":true}`)

	client, err := payments.NewHTTPClient(srv.URL+"/", "secret-token", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	resp, err := client.Send(context.Background(), &payments.Request{Body: []byte(`{"id":"1"}`)})
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if !resp.Success() || resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Body != `{"ok":true}` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if resp.Headers.Get("X-Request-Id") != "req-1" {
		t.Fatalf("expected response headers to be captured, got %v", resp.Headers)
	}

	if len(*captured) != 1 {
		t.Fatalf("expected one request, got %d", len(*captured))
	}
	got := (*captured)[0]
	if got.method != http.MethodPost || got.path != payments.PaymentsPath {
		t.Fatalf("unexpected request line %s %s", got.method, got.path)
	}
	if got.headers.Get("Authorization") != "Bearer secret-token" {
		t.Fatalf("unexpected authorization header %q", got.headers.Get("Authorization"))
	}
	if got.headers.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", got.headers.Get("Content-Type"))
	}
	if got.body != `{"id":"1"}` {
		t.Fatalf("unexpected body %q", got.body)
	}
}

func TestHTTPClientReturnsErrorStatusesAsResponses(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		srv, _ := newServer(t, status, `{"error":"nope"}`)
		client, err := payments.NewHTTPClient(srv.URL, "token", zerolog.Nop())
		if err != nil {
			t.Fatalf("unexpected constructor error: %v", err)
		}

		resp, err := client.Send(context.Background(), &payments.Request{Body: []byte(`{}`)})
		if err != nil {
			t.Fatalf("status %d must not be a transport error: %v", status, err)
		}
		if resp.Success() || resp.StatusCode != status {
			t.Fatalf("unexpected response %+v", resp)
		}
	}
}

func TestHTTPClientBodyLimit(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, strings.Repeat("x", 100))
	client, err := payments.NewHTTPClient(srv.URL, "token", zerolog.Nop(), payments.WithBodyLimit(10))
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	resp, err := client.Send(context.Background(), &payments.Request{Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Body) != 10 {
		t.Fatalf("expected body truncated to 10 bytes, got %d", len(resp.Body))
	}
}

type failingDoer struct{ err error }

func (f failingDoer) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestHTTPClientTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	client, err := payments.NewHTTPClient("https://payments.example.com", "token", zerolog.Nop(), payments.WithHTTPDoer(failingDoer{err: boom}))
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	resp, err := client.Send(context.Background(), &payments.Request{Body: []byte(`{}`)})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response on transport error")
	}
}

func TestNewHTTPClientValidation(t *testing.T) {
	if _, err := payments.NewHTTPClient("", "token", zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing base url")
	}
	if _, err := payments.NewHTTPClient("ftp://example.com", "token", zerolog.Nop()); err == nil {
		t.Fatalf("expected error for non-http base url")
	}
	if _, err := payments.NewHTTPClient("https://example.com", " ", zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing token")
	}

	client, err := payments.NewHTTPClient("https://example.com/", "t", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Endpoint() != "https://example.com/api/v1/payments" {
		t.Fatalf("unexpected endpoint %q", client.Endpoint())
	}
}

func TestHTTPClientRejectsEmptyBody(t *testing.T) {
	client, err := payments.NewHTTPClient("https://example.com", "t", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Send(context.Background(), &payments.Request{}); err == nil {
		t.Fatalf("expected error for empty body")
	}
}

func TestMockClientScenarios(t *testing.T) {
	client := payments.NewMockClient(zerolog.Nop(), payments.WithRandomSeed(1), payments.WithLatencyRange(0, 0))

	cases := map[payments.Scenario]int{
		payments.ScenarioSuccess:     http.StatusCreated,
		payments.ScenarioUnavailable: http.StatusServiceUnavailable,
		payments.ScenarioRateLimited: http.StatusTooManyRequests,
		payments.ScenarioRejected:    http.StatusBadRequest,
	}
	for scenario, status := range cases {
		req := &payments.Request{
			Body:    []byte(`{}`),
			Headers: map[string]string{payments.HeaderScenario: string(scenario)},
		}
		resp, err := client.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("scenario %s: unexpected error %v", scenario, err)
		}
		if resp.StatusCode != status {
			t.Fatalf("scenario %s: status = %d, want %d", scenario, resp.StatusCode, status)
		}
	}
	if client.Calls() != len(cases) {
		t.Fatalf("expected %d calls, got %d", len(cases), client.Calls())
	}
}

func TestMockClientTimeout(t *testing.T) {
	client := payments.NewMockClient(zerolog.Nop(),
		payments.WithDefaultScenario(payments.ScenarioTimeout),
		payments.WithLatencyRange(time.Millisecond, time.Millisecond),
	)

	_, err := client.Send(context.Background(), &payments.Request{Body: []byte(`{}`)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFactory(t *testing.T) {
	client, err := payments.New(payments.Settings{Backend: "MOCK"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*payments.MockClient); !ok {
		t.Fatalf("expected mock client, got %T", client)
	}

	client, err = payments.New(payments.Settings{BaseURL: "https://example.com", Token: "t", Timeout: time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*payments.HTTPClient); !ok {
		t.Fatalf("expected http client by default, got %T", client)
	}

	if _, err := payments.New(payments.Settings{Backend: "carrier-pigeon"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestTruncateRaw(t *testing.T) {
	if got := payments.TruncateRaw("héllo", 2); got != "hé" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := payments.TruncateRaw("abc", 10); got != "abc" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := payments.TruncateRaw("abc", 0); got != "" {
		t.Fatalf("expected empty string for zero limit, got %q", got)
	}
}
