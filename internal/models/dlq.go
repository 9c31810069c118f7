package models

import (
	"encoding/json"
	"time"
)

// Failure types for DLQ records.
const (
	FailureTypeDecode     = "decode"
	FailureTypeValidation = "validation"
	FailureTypePermanent  = "permanent"
	FailureTypeTransient  = "transient"
)

// DLQRecord is the payload written to the dead-letter topic. OriginalMessage
// holds the inbound envelope verbatim when it was valid JSON.
type DLQRecord struct {
	MessageID       string            `json:"message_id"`
	OriginalMessage json.RawMessage   `json:"original_message,omitempty"`
	Attempts        int               `json:"attempts"`
	FailureType     string            `json:"failure_type"`
	LastError       string            `json:"last_error,omitempty"`
	Errors          []string          `json:"errors,omitempty"`
	LastStatus      int               `json:"last_status,omitempty"`
	LastBody        string            `json:"last_body,omitempty"`
	FirstFailedAt   time.Time         `json:"first_failed_at"`
	LastAttemptAt   time.Time         `json:"last_attempt_at"`
	Meta            map[string]string `json:"meta,omitempty"`
}
