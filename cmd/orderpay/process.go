package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/order-payment-service/internal/app"
	"github.com/example/order-payment-service/internal/config"
	"github.com/example/order-payment-service/internal/logger"
	"github.com/example/order-payment-service/internal/models"
)

func processCmd() *cobra.Command {
	var (
		sender string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Run a message through the full pipeline and submit the payment",
		Long: `Runs allow-list, decoding, extraction, validation and submission for one
message and prints the outcome as JSON. Configuration is read from the
environment (and .env). The exit status is 1 for any non-success outcome.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			var opts []config.LoadOption
			if dryRun {
				opts = append(opts, config.WithPaymentsBackend(config.BackendMock))
			}
			cfg, err := config.Load(opts...)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.App.Env, cfg.App.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			client, err := app.NewPaymentsClient(cfg, *log)
			if err != nil {
				return err
			}
			pipe, err := app.NewPipeline(cfg, client, *log)
			if err != nil {
				return err
			}

			outcome, err := pipe.Process(cmd.Context(), models.InboundEmail{
				MessageID:  uuid.NewString(),
				Sender:     sender,
				ReceivedAt: time.Now().UTC(),
				Raw:        raw,
			})
			if err != nil {
				return err
			}

			if err := writeJSON(cmd.OutOrStdout(), outcome); err != nil {
				return err
			}
			if !outcome.OK() {
				return &outcomeError{kind: string(outcome.Kind)}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sender, "sender", "s", "", "Envelope sender checked against the allow-list")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Submit to the in-process mock payments API")

	return cmd
}
