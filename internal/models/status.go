package models

import "time"

// Status event constants.
const (
	StatusEventReceived  = "received"
	StatusEventIgnored   = "ignored"
	StatusEventSubmitted = "submitted"
	StatusEventRejected  = "rejected"
	StatusEventFailed    = "failed"
)

// StatusEvent represents a lifecycle update for one inbound email.
type StatusEvent struct {
	MessageID string      `json:"message_id"`
	EventType string      `json:"event_type"`
	Sender    string      `json:"sender,omitempty"`
	OrderID   string      `json:"order_id,omitempty"`
	Outcome   OutcomeKind `json:"outcome,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	Status    int         `json:"status,omitempty"`
	Response  string      `json:"response,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
