// Package allowlist decides which senders may trigger a payment.
package allowlist

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/order-payment-service/internal/util"
)

// List is an immutable set of normalized sender addresses. An empty list
// allows every sender.
type List struct {
	addrs   map[string]struct{}
	ordered []string
}

// New normalizes addrs and builds a List. Display names are accepted and
// stripped; duplicates collapse.
func New(addrs []string) (*List, error) {
	normalized, err := util.NormalizeAddresses(addrs)
	if err != nil {
		return nil, fmt.Errorf("allowlist: %w", err)
	}

	l := &List{addrs: make(map[string]struct{}, len(normalized)), ordered: normalized}
	for _, a := range normalized {
		l.addrs[a] = struct{}{}
	}
	return l, nil
}

// Allowed reports whether sender is permitted. Unparseable senders are never
// allowed by a non-empty list.
func (l *List) Allowed(sender string) bool {
	if l.Empty() {
		return true
	}
	addr, err := util.NormalizeAddress(sender)
	if err != nil {
		return false
	}
	_, ok := l.addrs[addr]
	return ok
}

// Empty reports whether the list has no entries.
func (l *List) Empty() bool { return l == nil || len(l.addrs) == 0 }

// Addresses returns the normalized entries in first-seen order.
func (l *List) Addresses() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.ordered...)
}

type fileFormat struct {
	Senders []string `yaml:"senders"`
}

// ParseYAML reads a document of the form:
//
//	senders:
//	  - orders@shop.example
//	  - "Shop <billing@shop.example>"
func ParseYAML(data []byte) ([]string, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("allowlist: parse yaml: %w", err)
	}
	return doc.Senders, nil
}

// LoadFile reads and parses a YAML allow-list file.
func LoadFile(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("allowlist: file path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("allowlist: read %s: %w", path, err)
	}
	return ParseYAML(data)
}
