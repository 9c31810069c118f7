// Package extractor pulls order fields out of the plain-text body of an
// order-confirmation email.
//
// Each field has its own rule: a label regexp that finds every occurrence of
// the field's label in the text, and a value regexp anchored at one
// occurrence that captures the value. Rules never share state, so extraction
// order across fields does not matter.
//
// When a label occurs several times (a reply quoting the original, a forwarded
// thread) the occurrence with the greatest offset that carries a valid value
// wins. Occurrences with no valid value are skipped, never treated as errors.
package extractor

import (
	"regexp"
	"strings"

	"github.com/example/order-payment-service/internal/order"
)

// Rule extracts one field. Label matches are case-insensitive; values are
// line-scoped.
type Rule struct {
	Field order.Field
	label *regexp.Regexp
	value *regexp.Regexp
	post  func(string) (string, bool)
}

// hws matches horizontal whitespace only, so captures never cross a line.
const hws = `[^\S\r\n]`

// DefaultRules returns the rule set for order-confirmation emails.
func DefaultRules() []Rule {
	return []Rule{
		newRule(order.FieldOrderID, `Order`, hws+`+(\d+)`, nil),
		newRule(order.FieldPricePerItem, `Price per item:`, hws+`*\$?(\d+\.\d{2})`, prefixDollar),
		// Sizes are whole tokens so "XLarge" is not read as "XL".
		newRule(order.FieldTShirtSize, `T-Shirt Size:`, hws+`*([A-Z]+)\b`, nil),
		newRule(order.FieldConfirmationCode, `Confirmation Code:`, hws+`*([A-Z0-9]+)`, nil),
		newRule(order.FieldBillingName, `Billing Name:`, hws+`*(\S[^\r\n]*)`, trimSpace),
	}
}

func newRule(field order.Field, label, value string, post func(string) (string, bool)) Rule {
	quoted := regexp.QuoteMeta(label)
	return Rule{
		Field: field,
		label: regexp.MustCompile(`(?i)` + quoted),
		value: regexp.MustCompile(`^(?i:` + quoted + `)` + value),
		post:  post,
	}
}

// Extractor applies a fixed rule set to text.
type Extractor struct {
	rules []Rule
}

// New returns an Extractor using rules, or DefaultRules when none are given.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

var defaultExtractor = New()

// Extract runs the default rules over text.
func Extract(text string) order.ExtractionRecord {
	return defaultExtractor.Extract(text)
}

// Extract runs every rule over text and returns the fields that were found.
// It never fails: an empty text yields an empty record.
func (e *Extractor) Extract(text string) order.ExtractionRecord {
	values := make(map[order.Field]string, len(e.rules))
	for _, r := range e.rules {
		if v, ok := r.Apply(text); ok {
			values[r.Field] = v
		}
	}
	return order.NewExtractionRecord(values)
}

// Apply returns the value captured at the last label occurrence in text that
// is followed by a valid value.
func (r Rule) Apply(text string) (string, bool) {
	labels := r.label.FindAllStringIndex(text, -1)
	for i := len(labels) - 1; i >= 0; i-- {
		m := r.value.FindStringSubmatch(text[labels[i][0]:])
		if m == nil {
			continue
		}
		v := m[1]
		if r.post == nil {
			return v, true
		}
		if out, ok := r.post(v); ok {
			return out, true
		}
	}
	return "", false
}

func prefixDollar(v string) (string, bool) {
	return "$" + v, true
}

func trimSpace(v string) (string, bool) {
	v = strings.TrimSpace(v)
	return v, v != ""
}
