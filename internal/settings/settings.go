// Package settings reads host-managed key/value settings.
package settings

import (
	"context"

	"keycloak-bridge/internal/config"
)

const (
	KeyServerURL           = "keycloak.server_url"
	KeyRealm               = "keycloak.realm"
	KeyClientID            = "keycloak.app_id"
	KeyClientSecret        = "keycloak.app_secret"
	KeyEncryptionAlgorithm = "keycloak.encryption_algorithm"
	KeyEncryptionKey       = "keycloak.encryption_key"
	KeyRoleMapping         = "keycloak.role_mapping"
)

// Store returns a setting value; unknown keys yield "", nil.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// Static serves settings from memory.
type Static map[string]string

func (s Static) Get(_ context.Context, key string) (string, error) {
	return s[key], nil
}

// FromConfig builds the env-provided defaults.
func FromConfig(cfg config.Config) Static {
	return Static{
		KeyServerURL:           cfg.KeycloakServerURL,
		KeyRealm:               cfg.KeycloakRealm,
		KeyClientID:            cfg.KeycloakClientID,
		KeyClientSecret:        cfg.KeycloakClientSecret,
		KeyEncryptionAlgorithm: cfg.KeycloakEncryptionAlgorithm,
		KeyEncryptionKey:       cfg.KeycloakEncryptionKey,
		KeyRoleMapping:         cfg.KeycloakRoleMapping,
	}
}

// Layered returns the first non-empty value across stores.
type Layered []Store

func (l Layered) Get(ctx context.Context, key string) (string, error) {
	for _, s := range l {
		v, err := s.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}
