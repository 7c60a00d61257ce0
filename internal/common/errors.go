// Package common holds the error kinds shared by repositories, services and
// HTTP handlers. Layers wrap them with fmt.Errorf("%w: ...") and callers
// classify with errors.Is.
package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrAlreadyExists      = errors.New("already exists")
	ErrVerificationFailed = errors.New("verification failed")
	ErrQuorumNotMet       = errors.New("quorum not met")
	ErrStorage            = errors.New("storage error")
	ErrTimeout            = errors.New("timeout")
)

// Validation builds an ErrValidation carrying a user facing message.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// StorageErr classifies a persistence failure. An expired or cancelled ctx
// becomes ErrTimeout even when the driver reports its own cancellation error.
func StorageErr(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// Message strips the kind prefix and returns the human part of a wrapped
// error, falling back to the kind itself.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrDuplicateRequest, ErrAlreadyExists, ErrVerificationFailed, ErrQuorumNotMet} {
		if errors.Is(err, kind) {
			prefix := kind.Error() + ": "
			msg := err.Error()
			if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
				return msg[len(prefix):]
			}
			return msg
		}
	}
	return err.Error()
}
