package models

import (
	"fmt"
	"net/http"
	"strings"
)

// OutcomeKind enumerates the terminal results of one pipeline invocation.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeValidationFailed OutcomeKind = "validation_failed"
	OutcomeSubmissionFailed OutcomeKind = "submission_failed"
)

// Outcome is the terminal value returned for a processed email. Exactly one
// of Body, Errors or Failure is meaningful, selected by Kind.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// OrderID is set once a record passed validation.
	OrderID string `json:"order_id,omitempty"`
	// Body is the API response body on success.
	Body string `json:"body,omitempty"`
	// Errors lists the validation failures in check order.
	Errors []string `json:"errors,omitempty"`
	// Failure describes the last submission error.
	Failure *SubmissionError `json:"failure,omitempty"`
	// Attempts is the number of API calls made.
	Attempts int `json:"attempts"`
}

// Success builds a success outcome.
func Success(body string, attempts int) Outcome {
	return Outcome{Kind: OutcomeSuccess, Body: body, Attempts: attempts}
}

// ValidationFailed builds a validation failure outcome.
func ValidationFailed(errs []string) Outcome {
	return Outcome{Kind: OutcomeValidationFailed, Errors: append([]string(nil), errs...)}
}

// SubmissionFailed builds a submission failure outcome.
func SubmissionFailed(failure *SubmissionError) Outcome {
	out := Outcome{Kind: OutcomeSubmissionFailed, Failure: failure}
	if failure != nil {
		out.Attempts = failure.Attempts
	}
	return out
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

// Err returns the outcome as an error, or nil on success.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeValidationFailed:
		return fmt.Errorf("validation failed: %s", strings.Join(o.Errors, "; "))
	default:
		if o.Failure == nil {
			return fmt.Errorf("submission failed")
		}
		return o.Failure
	}
}

// SubmissionError carries the last observed condition of a failed submission.
// Status is zero when no HTTP response was obtained.
type SubmissionError struct {
	Retryable bool        `json:"retryable"`
	Status    int         `json:"status,omitempty"`
	Body      string      `json:"body,omitempty"`
	Headers   http.Header `json:"headers,omitempty"`
	Attempts  int         `json:"attempts"`
	Cause     error       `json:"-"`
}

func (e *SubmissionError) Error() string {
	var b strings.Builder
	b.WriteString("submission failed")
	if e.Retryable {
		b.WriteString(" (retries exhausted)")
	}
	fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *SubmissionError) Unwrap() error { return e.Cause }
