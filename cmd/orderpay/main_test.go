package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
)

const confirmation = "From: orders@shop.example\r\n" +
	"Subject: Your order\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Order 98765\r\n" +
	"T-Shirt Size: L\r\n" +
	"Price per item: 19.99\r\n" +
	"Billing Name: Ada Lovelace\r\n"

func runExtract(t *testing.T, input string) (map[string]json.RawMessage, error) {
	t.Helper()
	cmd := extractCmd()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	var out, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	var report map[string]json.RawMessage
	if decodeErr := json.Unmarshal(out.Bytes(), &report); decodeErr != nil {
		t.Fatalf("output is not JSON: %v\n%s", decodeErr, out.String())
	}
	return report, err
}

func TestExtractPrintsNormalizedRecord(t *testing.T) {
	report, err := runExtract(t, confirmation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var record map[string]string
	if err := json.Unmarshal(report["record"], &record); err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if record["orderId"] != "98765" || record["billingName"] != "Ada Lovelace" || record["tshirtSize"] != "L" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := report["errors"]; ok {
		t.Fatalf("did not expect errors in %v", report)
	}
}

func TestExtractReportsValidationErrors(t *testing.T) {
	input := strings.Replace(confirmation, "Billing Name: Ada Lovelace\r\n", "", 1)

	report, err := runExtract(t, input)
	var oe *outcomeError
	if !errors.As(err, &oe) || exitCode(err) != 1 {
		t.Fatalf("expected outcome error with exit 1, got %v", err)
	}

	var errs []string
	if jsonErr := json.Unmarshal(report["errors"], &errs); jsonErr != nil || len(errs) == 0 {
		t.Fatalf("expected validation errors, got %s", report["errors"])
	}
	if _, ok := report["record"]; ok {
		t.Fatalf("did not expect a record in %v", report)
	}
}

func TestExitCode(t *testing.T) {
	if exitCode(errors.New("boom")) != 2 {
		t.Fatalf("expected exit 2 for operational errors")
	}
	if exitCode(&outcomeError{kind: "submission_failed"}) != 1 {
		t.Fatalf("expected exit 1 for outcome errors")
	}
}

func TestProcessDryRunUsesMockBackend(t *testing.T) {
	for _, key := range []string{"PAYMENT_API_BASE_URL", "PAYMENT_API_TOKEN", "ALLOWED_SENDERS", "ALLOWED_SENDERS_FILE", "SUBMIT_MAX_RETRIES", "SUBMIT_BASE_BACKOFF_MS"} {
		t.Setenv(key, "")
	}
	t.Setenv("PAYMENT_API_BACKEND", "http")
	t.Setenv("LOG_LEVEL", "error")

	cmd := processCmd()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	var out, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(confirmation))
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--dry-run", "--sender", "orders@shop.example"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v (stderr: %s)", err, stderr.String())
	}

	var outcome struct {
		Kind     string `json:"kind"`
		OrderID  string `json:"order_id"`
		Attempts int    `json:"attempts"`
	}
	if err := json.Unmarshal(out.Bytes(), &outcome); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if outcome.Kind != "success" || outcome.OrderID != "98765" || outcome.Attempts != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if got := os.Getenv("PAYMENT_API_BACKEND"); got != "http" {
		t.Fatalf("dry run must not modify the environment, got %q", got)
	}
}
