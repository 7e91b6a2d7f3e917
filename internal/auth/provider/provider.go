package provider

import (
	"context"

	"keycloak-bridge/internal/auth"
)

// OAuthProvider defines the OAuth2 client contract of the callback
// handler. Implementations return identity facts only and must not
// perform user creation, linking, or session management.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "keycloak").
	Name() string

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode exchanges the authorization code for provider credentials
	// and returns a normalized identity. Failures are *auth.ProviderError.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.Identity, error)
}
