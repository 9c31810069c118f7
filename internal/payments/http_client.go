package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/util"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 16 * 1024
)

// HTTPDoer abstracts the http.Client Do method for easier testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPOption customises the behaviour of the HTTP client.
type HTTPOption func(*HTTPClient)

// WithHTTPDoer overrides the HTTP client used to talk to the API.
func WithHTTPDoer(doer HTTPDoer) HTTPOption {
	return func(c *HTTPClient) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBodyLimit adjusts how many bytes are retained from the HTTP response body.
func WithBodyLimit(limit int64) HTTPOption {
	return func(c *HTTPClient) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// HTTPClient implements Client against the payments HTTP API.
type HTTPClient struct {
	logger       zerolog.Logger
	endpoint     string
	token        string
	doer         HTTPDoer
	timeout      time.Duration
	maxBodyBytes int64
}

// NewHTTPClient constructs a client posting to baseURL + PaymentsPath with a
// bearer token.
func NewHTTPClient(baseURL, token string, logger zerolog.Logger, opts ...HTTPOption) (*HTTPClient, error) {
	base, err := util.ValidateHTTPURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("payments client: base url: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("payments client: api token is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	c := &HTTPClient{
		logger:       logger,
		endpoint:     base + PaymentsPath,
		token:        strings.TrimSpace(token),
		timeout:      defaultTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.doer == nil {
		c.doer = &http.Client{Timeout: c.timeout}
	}

	return c, nil
}

// Endpoint returns the full URL requests are posted to.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// Send posts req.Body and returns the response. The body is read (up to the
// configured limit) and closed before returning.
func (c *HTTPClient) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || len(req.Body) == 0 {
		return nil, errors.New("payments client: request body is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("payments client: new request: %w", err)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	// Each attempt owns its connection; nothing is carried into the next one.
	httpReq.Close = true

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payments client: http do: %w", err)
	}
	defer resp.Body.Close()

	// A status was received, so a failed body read keeps the status and
	// whatever was read.
	body, err := c.readBody(resp.Body)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Int("status", resp.StatusCode).
			Msg("payments api response body could not be read")
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("endpoint", c.endpoint).
		Msg("payments api responded")

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header.Clone(),
	}, nil
}

func (c *HTTPClient) readBody(rc io.ReadCloser) (string, error) {
	if rc == nil {
		return "", nil
	}

	data, err := io.ReadAll(io.LimitReader(rc, c.maxBodyBytes))
	if err != nil {
		return string(data), fmt.Errorf("payments client: read body: %w", err)
	}
	return string(data), nil
}
