package sipdbutil

import (
	"crypto/rand"
	"encoding/base64"
)

// Returns the given number of random bytes encoded with base64. Used for
// generating database passwords.
func Base64Random(length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
