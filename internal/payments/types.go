// Package payments contains the client used to call the downstream payments
// API. A client performs one HTTP exchange per call and does not retry; retry
// policy belongs to the caller.
package payments

import (
	"context"
	"net/http"
	"unicode/utf8"
)

// PaymentsPath is the fixed path appended to the configured base URL.
const PaymentsPath = "/api/v1/payments"

// DefaultRawBodyLimit defines the maximum number of characters retained from a
// response body when it is attached to logs or failure records.
const DefaultRawBodyLimit = 1024

// Request is one submission attempt. Body is the already-encoded JSON payload
// and is sent verbatim.
type Request struct {
	Body []byte
	// Headers are extra request headers. Authorization and Content-Type are
	// always set by the client.
	Headers map[string]string
}

// Response is the HTTP outcome of an attempt.
type Response struct {
	StatusCode int
	Body       string
	Headers    http.Header
}

// Success reports whether the status is 2xx.
func (r *Response) Success() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is the contract exposed by payments API implementations. A non-nil
// error means no HTTP response was obtained; any HTTP status, including
// 4xx/5xx, is returned as a Response with a nil error.
type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

// Send implements Client.
func (f ClientFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// TruncateRaw trims the supplied string to the specified rune limit. If limit
// is zero or negative it returns an empty string.
func TruncateRaw(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:limit])
}
