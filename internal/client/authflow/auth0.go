package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	identitydomain "identity-sync/internal/identity/domain"
)

var (
	// ErrStateMismatch is returned when a callback's state does not match a pending login.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrNoSession is returned by AccessToken when nobody is logged in.
	ErrNoSession = errors.New("no session")
)

// defaultScopes requests an ID token with profile and email plus a refresh token for silent renewal.
var defaultScopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}

// Auth0Provider is a Provider for Auth0-compatible tenants: authorization code with PKCE (S256), the audience
// parameter for API access tokens, refresh-token renewal and ID-token verification for the cached profile.
// Sessions live in memory.
type Auth0Provider struct {
	issuer     string
	clientID   string
	audience   string
	oauth      *oauth2.Config
	idVerifier *oidc.IDTokenVerifier
	httpClient *http.Client

	mu      sync.Mutex
	pending map[string]string // state -> PKCE verifier
	token   *oauth2.Token
	profile *identitydomain.ExternalIdentity
}

// NewAuth0Provider returns a provider for cfg. A nil httpClient uses a client with a 10s timeout.
func NewAuth0Provider(ctx context.Context, cfg ProviderConfig, httpClient *http.Client) (*Auth0Provider, error) {
	if strings.TrimSpace(cfg.Domain) == "" || strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("auth0: domain and client id are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	issuer := issuerURL(cfg.Domain)
	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(ctx, httpClient), issuer+".well-known/jwks.json")
	return &Auth0Provider{
		issuer:   issuer,
		clientID: cfg.ClientID,
		audience: cfg.Audience,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      defaultScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   issuer + "authorize",
				TokenURL:  issuer + "oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		idVerifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: cfg.ClientID}),
		httpClient: httpClient,
		pending:    make(map[string]string),
	}, nil
}

// Auth0Factory is a ProviderFactory building Auth0Provider with httpClient.
func Auth0Factory(httpClient *http.Client) ProviderFactory {
	return func(ctx context.Context, cfg ProviderConfig) (Provider, error) {
		return NewAuth0Provider(ctx, cfg, httpClient)
	}
}

// IsAuthenticated reports whether a token is held that is valid or renewable.
func (p *Auth0Provider) IsAuthenticated(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token != nil && (p.token.Valid() || p.token.RefreshToken != ""), nil
}

// Profile returns the profile taken from the verified ID token.
func (p *Auth0Provider) Profile(ctx context.Context) (*identitydomain.ExternalIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile == nil {
		return nil, nil
	}
	c := *p.profile
	return &c, nil
}

// LoginURL starts a login: it records a fresh state and PKCE verifier and returns the authorization URL.
func (p *Auth0Provider) LoginURL(ctx context.Context) (string, error) {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	p.mu.Lock()
	p.pending[state] = verifier
	p.mu.Unlock()

	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if p.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", p.audience))
	}
	return p.oauth.AuthCodeURL(state, opts...), nil
}

// HandleRedirectCallback exchanges the code for tokens and verifies the ID token.
func (p *Auth0Provider) HandleRedirectCallback(ctx context.Context, callback *url.URL) error {
	q := callback.Query()
	if e := q.Get("error"); e != "" {
		if d := q.Get("error_description"); d != "" {
			return fmt.Errorf("auth0: %s: %s", e, d)
		}
		return fmt.Errorf("auth0: %s", e)
	}
	state := q.Get("state")
	p.mu.Lock()
	verifier, ok := p.pending[state]
	delete(p.pending, state)
	p.mu.Unlock()
	if !ok {
		return ErrStateMismatch
	}

	ctx = p.clientContext(ctx)
	tok, err := p.oauth.Exchange(ctx, q.Get("code"), oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("auth0: exchange code: %w", err)
	}
	var profile *identitydomain.ExternalIdentity
	if raw, _ := tok.Extra("id_token").(string); raw != "" {
		profile, err = p.verifyIDToken(ctx, raw)
		if err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.token = tok
	p.profile = profile
	p.mu.Unlock()
	return nil
}

// AccessToken returns the current access token, using the refresh token when it has expired.
func (p *Auth0Provider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	current := p.token
	p.mu.Unlock()
	if current == nil {
		return "", ErrNoSession
	}
	if current.Valid() {
		return current.AccessToken, nil
	}

	tok, err := p.oauth.TokenSource(p.clientContext(ctx), current).Token()
	if err != nil {
		return "", fmt.Errorf("auth0: renew token: %w", err)
	}
	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()
	return tok.AccessToken, nil
}

// Logout drops the session and any pending logins.
func (p *Auth0Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = nil
	p.profile = nil
	p.pending = make(map[string]string)
	return nil
}

// LogoutURL returns {issuer}v2/logout with client_id and returnTo.
func (p *Auth0Provider) LogoutURL(returnTo string) string {
	v := url.Values{"client_id": {p.clientID}}
	if returnTo != "" {
		v.Set("returnTo", returnTo)
	}
	return p.issuer + "v2/logout?" + v.Encode()
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (p *Auth0Provider) verifyIDToken(ctx context.Context, raw string) (*identitydomain.ExternalIdentity, error) {
	idToken, err := p.idVerifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("auth0: verify id token: %w", err)
	}
	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("auth0: decode id token claims: %w", err)
	}
	return &identitydomain.ExternalIdentity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

func (p *Auth0Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(oidc.ClientContext(ctx, p.httpClient), oauth2.HTTPClient, p.httpClient)
}

// issuerURL mirrors config.IssuerURL: https://{domain}/ unless a scheme is given.
func issuerURL(domain string) string {
	d := strings.TrimRight(strings.TrimSpace(domain), "/")
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	return d + "/"
}
