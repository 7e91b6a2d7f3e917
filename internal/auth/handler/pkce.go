package handler

import (
	"crypto/sha256"
	"encoding/base64"

	"keycloak-bridge/internal/utils"
)

// generatePKCE returns an S256 verifier/challenge pair.
func generatePKCE() (verifier string, challenge string, err error) {
	verifier, err = utils.RandomString(32)
	if err != nil {
		return "", "", err
	}

	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])

	return verifier, challenge, nil
}
