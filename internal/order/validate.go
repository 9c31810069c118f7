package order

import (
	"regexp"
	"strings"
)

// Validation failure messages. They are stable and surface verbatim in status
// events and DLQ records.
const (
	ErrMsgMissingOrderID     = "Missing order ID"
	ErrMsgMissingBillingName = "Missing billing name"
	ErrMsgMissingTShirtSize  = "Missing T-shirt size"
	ErrMsgInvalidTShirtSize  = "Invalid T-shirt size"
	ErrMsgMissingPrice       = "Missing price per item"
	ErrMsgInvalidPrice       = "Invalid price format"
)

// ValidSizes enumerates the accepted T-shirt sizes.
var ValidSizes = map[string]struct{}{
	"XS":  {},
	"S":   {},
	"M":   {},
	"L":   {},
	"XL":  {},
	"XXL": {},
}

var priceFormat = regexp.MustCompile(`^\$?\d+\.\d{2}$`)

// ValidationErrors is the ordered list of human-readable validation failures.
type ValidationErrors []string

// Error implements error.
func (v ValidationErrors) Error() string {
	return "order validation failed: " + strings.Join(v, "; ")
}

// ValidationResult carries either a NormalizedRecord or the failures that
// prevented one from being built. Exactly one side is populated.
type ValidationResult struct {
	record NormalizedRecord
	errors ValidationErrors
}

// OK reports whether validation succeeded.
func (r ValidationResult) OK() bool {
	return len(r.errors) == 0
}

// Record returns the normalized record and true when validation succeeded.
func (r ValidationResult) Record() (NormalizedRecord, bool) {
	if !r.OK() {
		return NormalizedRecord{}, false
	}
	return r.record, true
}

// Errors returns a copy of the failures, nil when validation succeeded.
func (r ValidationResult) Errors() ValidationErrors {
	if r.OK() {
		return nil
	}
	return append(ValidationErrors(nil), r.errors...)
}

// Validate checks every required field of rec and reports all failures in one
// pass. Checks run in a fixed order: order ID, billing name, T-shirt size,
// price per item. The confirmation code is optional and unchecked.
func Validate(rec ExtractionRecord) ValidationResult {
	var errs ValidationErrors

	orderID, ok := rec.Get(FieldOrderID)
	if !ok {
		errs = append(errs, ErrMsgMissingOrderID)
	}

	billingName, ok := rec.Get(FieldBillingName)
	if !ok {
		errs = append(errs, ErrMsgMissingBillingName)
	}

	size, ok := rec.Get(FieldTShirtSize)
	switch {
	case !ok:
		errs = append(errs, ErrMsgMissingTShirtSize)
	case !validSize(size):
		errs = append(errs, ErrMsgInvalidTShirtSize)
	}

	price, ok := rec.Get(FieldPricePerItem)
	switch {
	case !ok:
		errs = append(errs, ErrMsgMissingPrice)
	case !priceFormat.MatchString(price):
		errs = append(errs, ErrMsgInvalidPrice)
	}

	if len(errs) > 0 {
		return ValidationResult{errors: errs}
	}

	code, hasCode := rec.Get(FieldConfirmationCode)
	return ValidationResult{
		record: NormalizedRecord{
			orderID:          orderID,
			billingName:      billingName,
			tshirtSize:       size,
			pricePerItem:     price,
			confirmationCode: code,
			hasConfirmation:  hasCode,
		},
	}
}

func validSize(size string) bool {
	_, ok := ValidSizes[size]
	return ok
}
