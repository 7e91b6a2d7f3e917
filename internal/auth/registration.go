package auth

import (
	"sort"
	"time"
)

// Attribute names used in Registration.Provided / Registration.Suggested.
const (
	AttrEmail     = "email"
	AttrUsername  = "username"
	AttrAvatarURL = "avatar_url"
)

// Registration splits identity facts into attributes the provider vouches
// for (provided) and attributes the user may still change (suggested).
type Registration struct {
	Provided  map[string]string
	Suggested map[string]string
	Payload   map[string]any
}

// NewRegistration decorates a registration from a remote identity: the
// email is trusted, username and avatar are suggestions.
func NewRegistration(identity *Identity) Registration {
	r := Registration{
		Provided:  map[string]string{AttrEmail: identity.Email},
		Suggested: map[string]string{},
		Payload:   identity.Payload,
	}
	if identity.PreferredUsername != "" {
		r.Suggested[AttrUsername] = identity.PreferredUsername
	}
	if identity.AvatarURL != "" {
		r.Suggested[AttrAvatarURL] = identity.AvatarURL
	}
	return r
}

// ProvidedKeys returns the provided attribute names, sorted.
func (r Registration) ProvidedKeys() []string {
	keys := make([]string, 0, len(r.Provided))
	for k := range r.Provided {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attributes merges provided and suggested values. Provided wins.
func (r Registration) Attributes() UserAttributes {
	merged := make(map[string]string, len(r.Provided)+len(r.Suggested))
	for k, v := range r.Suggested {
		merged[k] = v
	}
	for k, v := range r.Provided {
		merged[k] = v
	}

	_, trusted := r.Provided[AttrEmail]

	return UserAttributes{
		Username:         merged[AttrUsername],
		Email:            merged[AttrEmail],
		IsEmailConfirmed: trusted && merged[AttrEmail] != "",
		AvatarURL:        merged[AttrAvatarURL],
	}
}

// PendingRegistration binds a random token to an external identity so a
// later confirmation step can finish account creation.
type PendingRegistration struct {
	Token      string
	Provider   string
	Identifier string
	Provided   map[string]string
	Payload    map[string]any
	CreatedAt  time.Time
}
