package auth

// ProviderKeycloak is the login-provider name under which Keycloak
// identities are linked to local accounts.
const ProviderKeycloak = "keycloak"

// Identity represents a normalized external authentication identity
// returned by an OAuth provider. It contains facts only, no decisions.
type Identity struct {
	Provider          string         // e.g. "keycloak"
	ProviderUserID    string         // provider-scoped unique user identifier (sub)
	Email             string         // email returned by provider, trusted
	EmailVerified     bool           // whether provider asserts email ownership
	PreferredUsername string         // username suggestion only
	AvatarURL         string         // optional
	Roles             []string       // raw provider roles
	Payload           map[string]any // raw resource owner claims
}
