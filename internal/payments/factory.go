package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Backend names accepted by New.
const (
	BackendHTTP = "http"
	BackendMock = "mock"
)

// Settings selects and configures a Client implementation.
type Settings struct {
	Backend string
	BaseURL string
	Token   string
	Timeout time.Duration
}

// New constructs the configured client, defaulting to the HTTP backend.
func New(s Settings, logger zerolog.Logger) (Client, error) {
	switch backend := normalize(s.Backend, BackendHTTP); backend {
	case BackendHTTP:
		client, err := NewHTTPClient(s.BaseURL, s.Token, logger, WithTimeout(s.Timeout))
		if err != nil {
			return nil, fmt.Errorf("payments factory: http client init: %w", err)
		}
		logger.Info().
			Str("backend", backend).
			Str("endpoint", client.Endpoint()).
			Msg("payments client initialised")
		return client, nil
	case BackendMock:
		logger.Warn().
			Str("backend", backend).
			Msg("payments client initialised; no payments will reach the API")
		return NewMockClient(logger), nil
	default:
		return nil, fmt.Errorf("payments factory: unsupported backend %q", s.Backend)
	}
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
