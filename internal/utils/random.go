package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// RandomString returns bytes of crypto/rand entropy, base64url encoded.
func RandomString(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
