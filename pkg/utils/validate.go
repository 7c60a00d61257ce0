package utils

import (
	"net/mail"
	"strings"
)

const MaxKeyLength = 512

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RequireKey rejects blank or oversized key material.
func RequireKey(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: field + " is required"}
	}
	if len(value) > MaxKeyLength {
		return &ValidationError{Field: field, Message: field + " is too long"}
	}
	return nil
}

// ValidateEmail checks for a single bare address, e.g. "a@b.com".
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return &ValidationError{Field: "email", Message: "Invalid email address"}
	}
	return nil
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
