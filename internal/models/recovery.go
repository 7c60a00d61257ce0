package models

import "time"

// RecoveryStatus is the ordered stage of a recovery request.
type RecoveryStatus int

const (
	RecoveryOpened RecoveryStatus = 0
	// RecoveryUpdated is reached once every seeded trustee has submitted.
	RecoveryUpdated RecoveryStatus = 1
	// RecoveryMaxOpen is the highest status still considered in flight.
	RecoveryMaxOpen RecoveryStatus = 3
	RecoveryClosed  RecoveryStatus = 4
)

// IsOpen reports whether the request still blocks a new one for the same key.
func (s RecoveryStatus) IsOpen() bool {
	return s < RecoveryClosed
}

// Trust statuses of a recovery detail row.
const (
	TrustPending   = 0
	TrustSubmitted = 1
)

type RecoveryRequest struct {
	RequestID      string         `json:"request_id"`
	FromPublicKey  string         `json:"from_public_key"`
	NewPublicKey   string         `json:"new_public_key"`
	RecoveryStatus RecoveryStatus `json:"recovery_status"`
	LoggedOn       time.Time      `json:"logged_on"`
	UpdatedOn      time.Time      `json:"updated_on"`
}

// RecoveryDetail is one trustee's contribution to a request.
type RecoveryDetail struct {
	RequestID   string     `json:"request_id"`
	PublicKey   string     `json:"user_public_key"`
	TrustData   *string    `json:"trust_data,omitempty"`
	TrustStatus int        `json:"trust_status"`
	LoggedOn    time.Time  `json:"logged_on"`
	SubmittedOn *time.Time `json:"submitted_on,omitempty"`
}

// RecoveryRequestWithDetails is the requester's view of a request.
type RecoveryRequestWithDetails struct {
	RecoveryRequest
	Details []RecoveryDetail `json:"details"`
}

// SubmitResult describes the effect of a trustee submission on its request.
type SubmitResult struct {
	Request  RecoveryRequest
	Advanced bool
	Pending  int
}

// PendingForTrustee is what a trustee sees when polling.
type PendingForTrustee struct {
	TrustData    []TrustRelation   `json:"trustData"`
	RecoveryData []RecoveryRequest `json:"recoveryData"`
}
