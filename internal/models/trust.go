package models

import "time"

// TrustRelation records that Trustee holds an encrypted key share for Truster.
// TrustData is opaque ciphertext and is never interpreted.
type TrustRelation struct {
	TrusterPublicKey string    `json:"truster_public_key"`
	TrusteePublicKey string    `json:"trustee_public_key"`
	TrustData        string    `json:"trust_data"`
	CreatedOn        time.Time `json:"created_on"`
}

// TrustEntry is one trustee share submitted by a truster.
type TrustEntry struct {
	Trustee       string `json:"trustee"`
	EncryptedData string `json:"encryptedData"`
}
