package submission

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/govalues/decimal"
	"github.com/rs/zerolog"

	"github.com/example/order-payment-service/internal/order"
)

var errNegativeAmount = errors.New("amount is negative")

// PaymentPayload is the body posted to the payments API. It is derived 1:1
// from a NormalizedRecord.
type PaymentPayload struct {
	Name             string
	Amount           decimal.Decimal
	TShirtSize       string
	ID               string
	ConfirmationCode string
	hasConfirmation  bool
}

type paymentPayloadWire struct {
	Name             string      `json:"name"`
	Amount           json.Number `json:"amount"`
	TShirtSize       string      `json:"tshirt_size"`
	ID               string      `json:"id"`
	ConfirmationCode *string     `json:"confirmation_code,omitempty"`
}

// BuildPayload converts rec into a PaymentPayload. The price is stripped of
// its currency symbol and parsed as an exact decimal; a parse failure or a
// negative amount yields a *PayloadBuildError.
func BuildPayload(rec order.NormalizedRecord) (PaymentPayload, error) {
	if rec.IsZero() {
		return PaymentPayload{}, &PayloadBuildError{Err: errors.New("record is empty")}
	}

	price := rec.PricePerItem()
	amount, err := decimal.Parse(strings.TrimPrefix(strings.TrimSpace(price), "$"))
	if err != nil {
		return PaymentPayload{}, &PayloadBuildError{Price: price, Err: err}
	}
	if amount.IsNeg() {
		return PaymentPayload{}, &PayloadBuildError{Price: price, Err: errNegativeAmount}
	}

	p := PaymentPayload{
		Name:       rec.BillingName(),
		Amount:     amount,
		TShirtSize: rec.TShirtSize(),
		ID:         rec.OrderID(),
	}
	if code, ok := rec.ConfirmationCode(); ok {
		p.ConfirmationCode = code
		p.hasConfirmation = true
	}
	return p, nil
}

// HasConfirmationCode reports whether the payload carries a confirmation code.
func (p PaymentPayload) HasConfirmationCode() bool { return p.hasConfirmation }

// MarshalJSON encodes the payload in the API wire shape with amount as a JSON
// number and confirmation_code omitted when absent.
func (p PaymentPayload) MarshalJSON() ([]byte, error) {
	w := paymentPayloadWire{
		Name:       p.Name,
		Amount:     json.Number(p.Amount.String()),
		TShirtSize: p.TShirtSize,
		ID:         p.ID,
	}
	if p.hasConfirmation {
		code := p.ConfirmationCode
		w.ConfirmationCode = &code
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal payment payload: %w", err)
	}
	return data, nil
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (p PaymentPayload) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", p.ID).
		Str("name", p.Name).
		Str("amount", p.Amount.String()).
		Str("tshirt_size", p.TShirtSize)
	if p.hasConfirmation {
		e.Str("confirmation_code", p.ConfirmationCode)
	}
}
