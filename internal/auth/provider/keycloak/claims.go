package keycloak

import "keycloak-bridge/internal/auth"

// identityFromClaims normalizes userinfo claims. Roles are read from the
// top-level "roles" claim (client mapper), realm_access and the client's
// resource_access entry, in both userinfo and ID token claims.
func identityFromClaims(claims, idClaims map[string]any, clientID string) *auth.Identity {
	if claims == nil {
		claims = map[string]any{}
	}

	identity := &auth.Identity{
		Provider:          providerName,
		ProviderUserID:    stringClaim(claims, "sub"),
		Email:             stringClaim(claims, "email"),
		EmailVerified:     boolClaim(claims, "email_verified"),
		PreferredUsername: stringClaim(claims, "preferred_username"),
		AvatarURL:         stringClaim(claims, "picture"),
		Payload:           claims,
	}

	seen := map[string]struct{}{}
	for _, src := range []map[string]any{claims, idClaims} {
		for _, role := range collectRoles(src, clientID) {
			if _, dup := seen[role]; dup {
				continue
			}
			seen[role] = struct{}{}
			identity.Roles = append(identity.Roles, role)
		}
	}

	return identity
}

func collectRoles(claims map[string]any, clientID string) []string {
	if claims == nil {
		return nil
	}

	roles := stringList(claims["roles"])

	if realm, ok := claims["realm_access"].(map[string]any); ok {
		roles = append(roles, stringList(realm["roles"])...)
	}

	if resources, ok := claims["resource_access"].(map[string]any); ok {
		if client, ok := resources[clientID].(map[string]any); ok {
			roles = append(roles, stringList(client["roles"])...)
		}
	}

	return roles
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

func boolClaim(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
