package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"8080"`
	AppURL   string `env:"APP_URL" envDefault:"http://localhost:8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Defaults for host-managed settings; rows in the settings table win.
	KeycloakServerURL           string `env:"KEYCLOAK_SERVER_URL"`
	KeycloakRealm               string `env:"KEYCLOAK_REALM"`
	KeycloakClientID            string `env:"KEYCLOAK_CLIENT_ID"`
	KeycloakClientSecret        string `env:"KEYCLOAK_CLIENT_SECRET"`
	KeycloakEncryptionAlgorithm string `env:"KEYCLOAK_ENCRYPTION_ALGORITHM"`
	KeycloakEncryptionKey       string `env:"KEYCLOAK_ENCRYPTION_KEY"`
	KeycloakRoleMapping         string `env:"KEYCLOAK_ROLE_MAPPING"`

	// Browser-facing Keycloak base URL when it differs from the server URL.
	KeycloakPublicURL string `env:"KEYCLOAK_PUBLIC_URL"`

	AdminGroupID int64 `env:"ADMIN_GROUP_ID" envDefault:"1"`

	// SessionTTL bounds a session absolutely; SessionIdleTTL expires it
	// after inactivity. Zero idle TTL disables sliding expiry.
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"2h"`
	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	DatabaseDSN string `env:"DATABASE_DSN"`
}

// RedirectURL is the callback registered with Keycloak.
func (c Config) RedirectURL() string {
	return strings.TrimRight(c.AppURL, "/") + "/auth/keycloak"
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
