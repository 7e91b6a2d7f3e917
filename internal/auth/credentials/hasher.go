package credentials

import (
	"errors"
	"fmt"

	"keycloak-bridge/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted by HashPassword.
const MinPasswordLength = 8

var ErrPasswordTooShort = errors.New("password too short")

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	bytes, err := bcrypt.GenerateFromPassword(
		[]byte(password),
		bcrypt.DefaultCost,
	)
	if err != nil {
		return "", err
	}

	return string(bytes), nil
}

// RandomPasswordHash hashes an unguessable password for accounts that
// only ever sign in through an external provider.
func RandomPasswordHash() (string, error) {
	password, err := utils.RandomString(24)
	if err != nil {
		return "", fmt.Errorf("credentials: %w", err)
	}
	return HashPassword(password)
}
