// Package order holds the records that flow through the order-confirmation
// pipeline and the validator that promotes a partial extraction into a record
// that is safe to submit for payment.
package order

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Field names one of the business values pulled out of a confirmation email.
type Field string

const (
	FieldOrderID          Field = "orderId"
	FieldPricePerItem     Field = "pricePerItem"
	FieldTShirtSize       Field = "tshirtSize"
	FieldConfirmationCode Field = "confirmationCode"
	FieldBillingName      Field = "billingName"
)

// Fields lists every extractable field in a stable order.
var Fields = []Field{
	FieldOrderID,
	FieldPricePerItem,
	FieldTShirtSize,
	FieldConfirmationCode,
	FieldBillingName,
}

// ExtractionRecord is the partial result of scanning one email body. A field
// that was not found is absent from the record, which is distinct from a field
// that was found with an empty value. The record is read-only once built.
type ExtractionRecord struct {
	values map[Field]string
}

// NewExtractionRecord copies values into a new record. Keys that are not known
// fields are ignored.
func NewExtractionRecord(values map[Field]string) ExtractionRecord {
	rec := ExtractionRecord{values: make(map[Field]string, len(values))}
	for _, f := range Fields {
		if v, ok := values[f]; ok {
			rec.values[f] = v
		}
	}
	return rec
}

// Get returns the value for f and whether it was found.
func (r ExtractionRecord) Get(f Field) (string, bool) {
	v, ok := r.values[f]
	return v, ok
}

// Found lists the fields present in the record in Fields order.
func (r ExtractionRecord) Found() []Field {
	out := make([]Field, 0, len(r.values))
	for _, f := range Fields {
		if _, ok := r.values[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Len reports how many fields were found.
func (r ExtractionRecord) Len() int {
	return len(r.values)
}

// MarshalJSON renders only the fields that were found.
func (r ExtractionRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(r.values))
	for f, v := range r.values {
		out[string(f)] = v
	}
	return json.Marshal(out)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r ExtractionRecord) MarshalZerologObject(e *zerolog.Event) {
	for _, f := range Fields {
		if v, ok := r.values[f]; ok {
			e.Str(string(f), v)
		}
	}
}

// NormalizedRecord is an ExtractionRecord that passed validation. It can only
// be obtained from Validate, so holding one means orderId, billingName,
// tshirtSize and pricePerItem are present and well-formed.
type NormalizedRecord struct {
	orderID          string
	billingName      string
	tshirtSize       string
	pricePerItem     string
	confirmationCode string
	hasConfirmation  bool
}

// OrderID returns the order number.
func (n NormalizedRecord) OrderID() string { return n.orderID }

// BillingName returns the trimmed billing name.
func (n NormalizedRecord) BillingName() string { return n.billingName }

// TShirtSize returns one of the sizes in ValidSizes.
func (n NormalizedRecord) TShirtSize() string { return n.tshirtSize }

// PricePerItem returns the price in `$D.DD` form.
func (n NormalizedRecord) PricePerItem() string { return n.pricePerItem }

// ConfirmationCode returns the optional confirmation code.
func (n NormalizedRecord) ConfirmationCode() (string, bool) {
	return n.confirmationCode, n.hasConfirmation
}

// IsZero reports whether n is the zero value, i.e. was not produced by Validate.
func (n NormalizedRecord) IsZero() bool {
	return n == NormalizedRecord{}
}

// MarshalJSON renders the record with the same field names as ExtractionRecord.
func (n NormalizedRecord) MarshalJSON() ([]byte, error) {
	out := map[string]string{
		string(FieldOrderID):      n.orderID,
		string(FieldBillingName):  n.billingName,
		string(FieldTShirtSize):   n.tshirtSize,
		string(FieldPricePerItem): n.pricePerItem,
	}
	if n.hasConfirmation {
		out[string(FieldConfirmationCode)] = n.confirmationCode
	}
	return json.Marshal(out)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (n NormalizedRecord) MarshalZerologObject(e *zerolog.Event) {
	e.Str(string(FieldOrderID), n.orderID).
		Str(string(FieldBillingName), n.billingName).
		Str(string(FieldTShirtSize), n.tshirtSize).
		Str(string(FieldPricePerItem), n.pricePerItem)
	if n.hasConfirmation {
		e.Str(string(FieldConfirmationCode), n.confirmationCode)
	}
}
