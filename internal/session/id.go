package session

import (
	"fmt"

	"keycloak-bridge/internal/utils"
)

// idBytes gives session and flow ids 256 bits of entropy.
const idBytes = 32

// GenerateID generates a cryptographically secure session or flow ID.
func GenerateID() (string, error) {
	id, err := utils.RandomString(idBytes)
	if err != nil {
		return "", fmt.Errorf("session: failed to generate id: %w", err)
	}
	return id, nil
}
