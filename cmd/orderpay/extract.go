package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/order-payment-service/internal/order"
	"github.com/example/order-payment-service/internal/pipeline"
)

type extractReport struct {
	Fields order.ExtractionRecord `json:"fields"`
	Record *order.NormalizedRecord `json:"record,omitempty"`
	Errors order.ValidationErrors  `json:"errors,omitempty"`
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [file]",
		Short: "Decode a message and print the extracted and validated order fields",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			analysis, err := pipeline.New(pipeline.Dependencies{Logger: zerolog.Nop()}).Analyze(raw)
			if err != nil {
				return err
			}

			report := extractReport{Fields: analysis.Extraction}
			if rec, ok := analysis.Result.Record(); ok {
				report.Record = &rec
			} else {
				report.Errors = analysis.Result.Errors()
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Record == nil {
				return &outcomeError{kind: "validation_failed"}
			}
			return nil
		},
	}
}
