package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"valid", "ops@lawma.gov.ng", "ops@lawma.gov.ng", nil},
		{"plus tag", "user+tag@example.com", "user+tag@example.com", nil},
		{"normalized", "  User@Example.COM ", "user@example.com", nil},
		{"empty", "", "", ErrEmpty},
		{"missing at", "userexample.com", "", ErrInvalidEmail},
		{"missing tld", "user@example", "", ErrInvalidEmail},
		{"double dot domain", "user@example..com", "", ErrInvalidEmail},
		{"local part too long", strings.Repeat("a", 65) + "@example.com", "", ErrTooLong},
		{"too long", strings.Repeat("a", 250) + "@example.com", "", ErrTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Email(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Email(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		c       Constraints
		want    string
		wantErr error
	}{
		{"trimmed", "  Ikeja Depot  ", Constraints{MaxLength: 20}, "Ikeja Depot", nil},
		{"empty required", "   ", Constraints{}, "", ErrEmpty},
		{"empty allowed", "", Constraints{AllowEmpty: true}, "", nil},
		{"too short", "ab", Constraints{MinLength: 3}, "", ErrTooShort},
		{"too long", "abcdef", Constraints{MaxLength: 5}, "", ErrTooLong},
		{"runes not bytes", "Èkó", Constraints{MaxLength: 3}, "Èkó", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Text(tt.input, tt.c)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Text(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	if _, err := Name(strings.Repeat("x", MaxNameLength)); err != nil {
		t.Errorf("expected a name at the limit to pass, got %v", err)
	}
	if _, err := Name(strings.Repeat("x", MaxNameLength+1)); !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
}

func TestPhone(t *testing.T) {
	valid := []string{"", "+234 803 123 4567", "0803-123-4567", "01 234 5678"}
	for _, p := range valid {
		if _, err := Phone(p); err != nil {
			t.Errorf("Phone(%q) error = %v", p, err)
		}
	}

	invalid := []string{"call me", "12345", "+234 803 123 4567 890 12"}
	for _, p := range invalid {
		if _, err := Phone(p); err == nil {
			t.Errorf("Phone(%q) expected error", p)
		}
	}
}
