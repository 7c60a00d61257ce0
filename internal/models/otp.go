package models

import "time"

// OTPPurpose separates challenges so a code issued for one flow cannot be
// replayed in another.
type OTPPurpose string

const (
	OTPPurposeRegistration OTPPurpose = "registration"
	OTPPurposeRecovery     OTPPurpose = "recovery"
)

// OTPChallenge is a single-use code bound to a session and an email.
type OTPChallenge struct {
	SessionID string
	Code      string
	Email     string
	Purpose   OTPPurpose
	IssuedAt  time.Time
}
