package models

import "time"

// InboundEmail is the envelope the worker receives for one inbound message.
// Raw carries the RFC 5322 bytes and is base64 encoded on the wire.
type InboundEmail struct {
	MessageID  string    `json:"message_id"`
	Sender     string    `json:"sender"`
	Recipient  string    `json:"recipient,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Raw        []byte    `json:"raw"`
}
