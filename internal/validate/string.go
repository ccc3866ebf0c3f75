// Package validate holds the field-level checks applied to catalog input
// before it reaches the store.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmpty        = errors.New("value is empty")
	ErrTooShort     = errors.New("value is too short")
	ErrTooLong      = errors.New("value is too long")
	ErrInvalidChars = errors.New("value contains invalid characters")
)

// Field length limits matching the column sizes the frontend enforces.
const (
	MaxNameLength    = 255
	MaxAddressLength = 500
	MaxNotesLength   = 5000
)

// Constraints describes what a text field must satisfy. Lengths count runes.
type Constraints struct {
	MinLength  int
	MaxLength  int // 0 means unlimited
	Pattern    *regexp.Regexp
	AllowEmpty bool
}

// Text trims s and checks it against c.
func Text(s string, c Constraints) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if c.AllowEmpty {
			return "", nil
		}
		return "", ErrEmpty
	}

	n := utf8.RuneCountInString(s)
	if c.MinLength > 0 && n < c.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrTooShort, n, c.MinLength)
	}
	if c.MaxLength > 0 && n > c.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrTooLong, n, c.MaxLength)
	}
	if c.Pattern != nil && !c.Pattern.MatchString(s) {
		return "", ErrInvalidChars
	}
	return s, nil
}

// Name validates a required display name such as a point or business name.
func Name(s string) (string, error) {
	return Text(s, Constraints{MinLength: 1, MaxLength: MaxNameLength})
}

// Optional validates a free-text field that may be empty.
func Optional(s string, maxLength int) (string, error) {
	return Text(s, Constraints{MaxLength: maxLength, AllowEmpty: true})
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,19}$`)

// Phone validates an optional phone number: digits with an optional leading
// plus, spaces, dashes and parentheses.
func Phone(s string) (string, error) {
	return Text(s, Constraints{MaxLength: 20, Pattern: phonePattern, AllowEmpty: true})
}
