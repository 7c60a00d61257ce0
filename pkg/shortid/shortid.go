// Package shortid generates compact random identifiers encoded in base58.
package shortid

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// DefaultBytes yields ids of roughly 22 characters.
const DefaultBytes = 16

// New returns a base58 string of n random bytes.
func New(n int) (string, error) {
	if n <= 0 {
		n = DefaultBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base58.Encode(buf), nil
}
