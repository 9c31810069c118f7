// Package app assembles the pipeline from configuration for the binaries.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/allowlist"
	"github.com/example/order-payment-service/internal/config"
	"github.com/example/order-payment-service/internal/logger"
	"github.com/example/order-payment-service/internal/payments"
	"github.com/example/order-payment-service/internal/pipeline"
	"github.com/example/order-payment-service/internal/submission"
)

// NewPaymentsClient builds the configured payments API client.
func NewPaymentsClient(cfg *config.Config, log zerolog.Logger) (payments.Client, error) {
	return payments.New(payments.Settings{
		Backend: cfg.Payments.Backend,
		BaseURL: cfg.Payments.BaseURL,
		Token:   cfg.Payments.Token,
		Timeout: cfg.PaymentsTimeout(),
	}, logger.Component(log, "payments"))
}

// NewPipeline wires the allow-list and a submission orchestrator around
// client. An empty allow-list is accepted with a warning.
func NewPipeline(cfg *config.Config, client payments.Client, log zerolog.Logger) (*pipeline.Pipeline, error) {
	allow, err := allowlist.New(cfg.Senders.Allowed)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if allow.Empty() {
		log.Warn().Msg("sender allow-list is empty; every sender will be processed")
	}

	orch, err := submission.NewOrchestrator(submission.Config{
		MaxRetries: cfg.Submit.MaxRetries,
		BaseDelay:  cfg.SubmitBaseDelay(),
	}, submission.Dependencies{
		Client: client,
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	return pipeline.New(pipeline.Dependencies{
		Allowlist: allow,
		Submitter: orch,
		Logger:    log,
	}), nil
}
