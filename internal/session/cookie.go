package session

import (
	"net/http"
	"time"
)

const (
	CookieName     = "__Host-session"
	FlowCookieName = "__oauth_flow"
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string // should usually be empty for __Host- cookies
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/" // required for __Host-
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

func (o CookieOptions) cookie(name, value string) *http.Cookie {
	o = o.normalize()
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		HttpOnly: o.HttpOnly,
		Secure:   o.Secure,
		SameSite: o.SameSite,
	}
}

// SetCookie issues the session cookie to the client.
func SetCookie(
	w http.ResponseWriter,
	sessionID string,
	expiresAt time.Time,
	opts CookieOptions,
) {
	c := opts.cookie(CookieName, sessionID)
	c.Expires = expiresAt
	http.SetCookie(w, c)
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(
	w http.ResponseWriter,
	opts CookieOptions,
) {
	c := opts.cookie(CookieName, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// SetFlowCookie issues the short-lived cookie pointing at a pending
// authorization flow.
func SetFlowCookie(w http.ResponseWriter, flowID string, ttl time.Duration, opts CookieOptions) {
	c := opts.cookie(FlowCookieName, flowID)
	c.MaxAge = int(ttl.Seconds())
	http.SetCookie(w, c)
}

func ClearFlowCookie(w http.ResponseWriter, opts CookieOptions) {
	c := opts.cookie(FlowCookieName, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}
