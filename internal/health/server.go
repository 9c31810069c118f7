// Package health serves liveness, readiness and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Status values reported by /healthz.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Check reports whether one dependency is ready.
type Check func() bool

// Report is the /healthz response body.
type Report struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks,omitempty"`
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	checks map[string]Check
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a health server listening on port. Every check must pass
// for /healthz to answer 200.
func NewServer(port int, checks map[string]Check, logger zerolog.Logger) *Server {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	mux := http.NewServeMux()
	s := &Server{
		checks: make(map[string]Check, len(checks)),
		logger: logger.With().Str("component", "health").Logger(),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	for name, check := range checks {
		if check != nil {
			s.checks[name] = check
		}
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler exposes the server mux.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("health server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health: serve: %w", err)
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Check evaluates every registered check.
func (s *Server) Check() Report {
	report := Report{Status: StatusOK}
	if len(s.checks) == 0 {
		return report
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report.Checks = make(map[string]bool, len(names))
	for _, name := range names {
		ok := s.checks[name]()
		report.Checks[name] = ok
		if !ok {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.Check()

	w.Header().Set("Content-Type", "application/json")
	if report.Status != StatusOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Error().Err(err).Msg("health: encode report")
	}
}
