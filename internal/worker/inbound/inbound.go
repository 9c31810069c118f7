// Package inbound parses the Kafka envelope that carries one inbound email.
package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/models"
	"github.com/example/order-payment-service/internal/util"
)

// ErrInvalidEnvelope wraps every parse and validation failure.
var ErrInvalidEnvelope = errors.New("invalid inbound envelope")

// Parser implements worker.Parser for the inbound email topic.
type Parser struct {
	logger      zerolog.Logger
	maxRawBytes int
}

// New constructs a Parser. maxRawBytes bounds the decoded message size; zero
// disables the check.
func New(maxRawBytes int, logger zerolog.Logger) *Parser {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Parser{logger: logger, maxRawBytes: maxRawBytes}
}

// Parse decodes payload as a models.InboundEmail. Unknown fields, trailing
// data, a non-v4 message id, an unparseable sender or an empty raw message
// are rejected.
func (p *Parser) Parse(ctx context.Context, payload []byte) (models.InboundEmail, error) {
	if err := ctx.Err(); err != nil {
		return models.InboundEmail{}, err
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return models.InboundEmail{}, fmt.Errorf("%w: payload is empty", ErrInvalidEnvelope)
	}

	var email models.InboundEmail
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&email); err != nil {
		return models.InboundEmail{}, fmt.Errorf("%w: decode: %w", ErrInvalidEnvelope, err)
	}
	if dec.More() {
		return models.InboundEmail{}, fmt.Errorf("%w: trailing data after envelope", ErrInvalidEnvelope)
	}

	if err := p.validate(&email); err != nil {
		return models.InboundEmail{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return email, nil
}

func (p *Parser) validate(email *models.InboundEmail) error {
	id, err := util.ParseUUIDv4(email.MessageID)
	if err != nil {
		return fmt.Errorf("message_id: %w", err)
	}
	email.MessageID = id.String()

	sender, err := util.NormalizeAddress(email.Sender)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	email.Sender = sender

	if strings.TrimSpace(email.Recipient) != "" {
		recipient, err := util.NormalizeAddress(email.Recipient)
		if err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
		email.Recipient = recipient
	} else {
		email.Recipient = ""
	}

	if email.ReceivedAt.IsZero() {
		return errors.New("received_at is required")
	}
	email.ReceivedAt = email.ReceivedAt.UTC()

	if len(email.Raw) == 0 {
		return errors.New("raw is required")
	}
	if err := util.EnsureMaxBytes("raw", email.Raw, p.maxRawBytes); err != nil {
		return err
	}
	return nil
}
