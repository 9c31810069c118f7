package util

import (
	"errors"
	"testing"
)

func TestParseUUIDv4(t *testing.T) {
	if _, err := ParseUUIDv4("b0c9c2b0-1f3a-4d2d-9e3f-123456789abc"); err != nil {
		t.Fatalf("expected success parsing valid uuid: %v", err)
	}

	if _, err := ParseUUIDv4(""); !errors.Is(err, ErrInvalidUUID) {
		t.Fatalf("expected ErrInvalidUUID for empty string, got %v", err)
	}

	if _, err := ParseUUIDv4("6fa459ea-ee8a-11d2-90f6-000000000000"); !errors.Is(err, ErrInvalidUUID) {
		t.Fatalf("expected ErrInvalidUUID for non v4 uuid, got %v", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"Orders@Shop.example":                  "orders@shop.example",
		"  orders@shop.example  ":              "orders@shop.example",
		`"Shop Orders" <Orders@Shop.Example>`: "orders@shop.example",
	}
	for input, want := range cases {
		got, err := NormalizeAddress(input)
		if err != nil {
			t.Fatalf("NormalizeAddress(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("NormalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}

	for _, bad := range []string{"", "not an address"} {
		if _, err := NormalizeAddress(bad); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected ErrInvalidEmail for %q, got %v", bad, err)
		}
	}
}

func TestNormalizeAddressesDeduplicates(t *testing.T) {
	got, err := NormalizeAddresses([]string{"a@example.com", "A@Example.com", "b@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Fatalf("unexpected result %v", got)
	}

	if _, err := NormalizeAddresses([]string{"ok@example.com", "bad"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestEnsureMaxBytes(t *testing.T) {
	if err := EnsureMaxBytes("raw", []byte("abc"), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := EnsureMaxBytes("raw", []byte("abcd"), 3); err == nil {
		t.Fatalf("expected size error")
	}
	if err := EnsureMaxBytes("raw", []byte("abcd"), 0); err != nil {
		t.Fatalf("limit 0 must disable the check: %v", err)
	}
}

func TestValidateHTTPURL(t *testing.T) {
	got, err := ValidateHTTPURL("https://payments.example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://payments.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", got)
	}

	for _, bad := range []string{"", "ftp://example.com", "https://"} {
		if _, err := ValidateHTTPURL(bad); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("expected ErrInvalidURL for %q, got %v", bad, err)
		}
	}
}
