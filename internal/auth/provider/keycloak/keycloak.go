package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"keycloak-bridge/internal/auth"
	"keycloak-bridge/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const providerName = auth.ProviderKeycloak

// Options configures a Keycloak realm client.
type Options struct {
	ServerURL    string // e.g. https://sso.example.com
	Realm        string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// PublicURL overrides the browser-facing base URL of the authorization
	// endpoint when Keycloak is reached internally under another name.
	PublicURL string

	// EncryptionAlgorithm and EncryptionKey decode userinfo responses
	// that Keycloak returns as JWTs.
	EncryptionAlgorithm string
	EncryptionKey       string
}

// Issuer returns the realm issuer URL.
func (o Options) Issuer() string {
	return strings.TrimRight(o.ServerURL, "/") + "/realms/" + o.Realm
}

// Provider implements OAuth + OIDC authentication against Keycloak.
// It returns identity facts only; no user/session decisions are made here.
type Provider struct {
	oauthConfig *oauth2.Config
	oidc        *oidc.Provider
	verifier    *oidc.IDTokenVerifier
	clientID    string
	userInfoURL string
	decoder     *jwtDecoder
}

// New initializes a Keycloak OIDC provider using discovery.
func New(ctx context.Context, opts Options) (*Provider, error) {

	if opts.ServerURL == "" || opts.Realm == "" || opts.ClientID == "" || opts.RedirectURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	decoder, err := newJWTDecoder(opts.EncryptionAlgorithm, opts.EncryptionKey)
	if err != nil {
		return nil, err
	}

	oidcProvider, err := oidc.NewProvider(ctx, opts.Issuer())
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	var discovery struct {
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := oidcProvider.Claims(&discovery); err != nil {
		return nil, fmt.Errorf("keycloak discovery document: %w", err)
	}

	verifier := oidcProvider.Verifier(&oidc.Config{
		ClientID: opts.ClientID,
	})

	ep := oidcProvider.Endpoint()
	if opts.PublicURL != "" {
		ep.AuthURL = strings.TrimRight(opts.PublicURL, "/") + "/realms/" + opts.Realm + "/protocol/openid-connect/auth"
	}

	oauthCfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		Endpoint:     ep,
		Scopes: []string{
			oidc.ScopeOpenID,
			"email",
			"profile",
		},
	}

	return &Provider{
		oauthConfig: oauthCfg,
		oidc:        oidcProvider,
		verifier:    verifier,
		clientID:    opts.ClientID,
		userInfoURL: discovery.UserInfoURL,
		decoder:     decoder,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode exchanges the authorization code, fetches the resource
// owner and returns a normalized identity. Every failure is a
// *auth.ProviderError.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.Identity, error) {

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		logger.Error("keycloak token exchange failed", map[string]any{
			"error": err.Error(),
		})
		return nil, &auth.ProviderError{Op: "token exchange", Err: err}
	}

	var idClaims map[string]any
	subject := ""

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			logger.Error("keycloak id_token verification failed", map[string]any{
				"error": err.Error(),
			})
			return nil, &auth.ProviderError{Op: "id_token verification", Err: err}
		}
		if err := idToken.Claims(&idClaims); err != nil {
			return nil, &auth.ProviderError{Op: "id_token claims", Err: err}
		}
		subject = idToken.Subject
	}

	claims, err := p.resourceOwner(ctx, token)
	if err != nil {
		logger.Error("keycloak resource owner fetch failed", map[string]any{
			"error": err.Error(),
		})
		return nil, &auth.ProviderError{Op: "resource owner", Err: err}
	}

	identity := identityFromClaims(claims, idClaims, p.clientID)

	if identity.ProviderUserID == "" {
		return nil, &auth.ProviderError{Op: "resource owner", Err: errors.New("missing sub claim")}
	}
	if subject != "" && subject != identity.ProviderUserID {
		return nil, &auth.ProviderError{Op: "resource owner", Err: errors.New("userinfo subject does not match id_token")}
	}

	logger.Info("keycloak resource owner fetched", map[string]any{
		"subject_present":    identity.ProviderUserID != "",
		"email_present":      identity.Email != "",
		"email_verified":     identity.EmailVerified,
		"preferred_username": identity.PreferredUsername,
		"roles":              len(identity.Roles),
	})

	return identity, nil
}

// resourceOwner fetches the userinfo claims. Without a configured
// decoder go-oidc handles the request; otherwise the response may be a
// JWT that is decoded with the configured key.
func (p *Provider) resourceOwner(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	if p.decoder == nil {
		info, err := p.oidc.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, err
		}
		var claims map[string]any
		if err := info.Claims(&claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	if p.userInfoURL == "" {
		return nil, errors.New("keycloak discovery has no userinfo endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)

	resp, err := p.httpClient(ctx).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/jwt" {
		return p.decoder.decode(strings.TrimSpace(string(body)))
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	return claims, nil
}

func (p *Provider) httpClient(ctx context.Context) *http.Client {
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c != nil {
		return c
	}
	return http.DefaultClient
}
