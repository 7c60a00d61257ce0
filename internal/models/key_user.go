package models

import "time"

// KeyUser is an identity addressed by an opaque public key.
type KeyUser struct {
	PublicKey      string    `json:"user_public_key"`
	PrivateKeyHash string    `json:"-"`
	Email          *string   `json:"email,omitempty"`
	EmailVerified  bool      `json:"email_status"`
	RegisteredOn   time.Time `json:"registered_on"`
}
