package validate

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidEmail is returned for addresses that do not look like user@domain.tld.
var ErrInvalidEmail = errors.New("invalid email format")

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email validates an email address and returns it trimmed and lowercased.
// Length limits follow RFC 5321.
func Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmpty
	}
	if len(email) > 254 {
		return "", ErrTooLong
	}
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}

	local, domain, _ := strings.Cut(email, "@")
	if len(local) > 64 {
		return "", ErrTooLong
	}
	if strings.Contains(domain, "..") || strings.HasPrefix(domain, ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
