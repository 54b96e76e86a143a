package utils // package utils provides helper functions for tokens and ticket secrets

import (
	"crypto/rand"   // secure random number generation
	"encoding/hex"  // hex encoding for opaque tokens
)

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data. Reservation keys use 32 bytes
// (64 hex characters); ticket secrets use the same length.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
