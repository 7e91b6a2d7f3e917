package keycloak

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// jwtDecoder decodes userinfo JWTs signed with a configured algorithm and key.
type jwtDecoder struct {
	alg string
	key any
}

// newJWTDecoder returns nil when no algorithm is configured. HS*
// algorithms take the key as a shared secret; RS*, PS* and ES* take a
// PEM encoded public key.
func newJWTDecoder(alg, key string) (*jwtDecoder, error) {
	alg = strings.ToUpper(strings.TrimSpace(alg))
	if alg == "" {
		return nil, nil
	}
	if key == "" {
		return nil, fmt.Errorf("keycloak: encryption algorithm %s requires a key", alg)
	}
	if jwt.GetSigningMethod(alg) == nil {
		return nil, fmt.Errorf("keycloak: unsupported encryption algorithm %q", alg)
	}

	d := &jwtDecoder{alg: alg}

	var err error
	switch {
	case strings.HasPrefix(alg, "HS"):
		d.key = []byte(key)
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		d.key, err = jwt.ParseRSAPublicKeyFromPEM([]byte(key))
	case strings.HasPrefix(alg, "ES"):
		d.key, err = jwt.ParseECPublicKeyFromPEM([]byte(key))
	default:
		err = fmt.Errorf("unsupported algorithm family")
	}
	if err != nil {
		return nil, fmt.Errorf("keycloak: encryption key for %s: %w", alg, err)
	}

	return d, nil
}

func (d *jwtDecoder) decode(raw string) (map[string]any, error) {
	claims := jwt.MapClaims{}

	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return d.key, nil
	}, jwt.WithValidMethods([]string{d.alg}))
	if err != nil {
		return nil, fmt.Errorf("userinfo jwt: %w", err)
	}

	return map[string]any(claims), nil
}
