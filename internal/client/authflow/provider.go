package authflow

import (
	"context"
	"net/url"

	identitydomain "identity-sync/internal/identity/domain"
)

// ProviderConfig is what the provider client is constructed with.
type ProviderConfig struct {
	// Domain is the provider host (e.g. "tenant.eu.auth0.com") or a full base URL.
	Domain      string
	ClientID    string
	Audience    string
	RedirectURI string
}

// Provider is the identity provider client: it owns the login session and its tokens.
type Provider interface {
	// IsAuthenticated reports whether a session exists that can yield an access token.
	IsAuthenticated(ctx context.Context) (bool, error)
	// Profile returns the profile cached with the session, or nil when there is none.
	Profile(ctx context.Context) (*identitydomain.ExternalIdentity, error)
	// LoginURL returns the authorization URL to send the user to.
	LoginURL(ctx context.Context) (string, error)
	// HandleRedirectCallback completes a login from the redirect URL carrying code and state.
	HandleRedirectCallback(ctx context.Context, callback *url.URL) error
	// AccessToken returns a valid access token, renewing it silently when expired.
	AccessToken(ctx context.Context) (string, error)
	// Logout clears the local session.
	Logout(ctx context.Context) error
	// LogoutURL returns the provider logout URL that sends the user back to returnTo.
	LogoutURL(returnTo string) string
}

// ProviderFactory constructs the provider client during Init.
type ProviderFactory func(ctx context.Context, cfg ProviderConfig) (Provider, error)

// Navigator sends the user agent to a URL.
type Navigator interface {
	Navigate(url string) error
}

// Location is the user agent's current URL.
type Location interface {
	Current() *url.URL
	// Replace swaps the current URL without navigating (history replace).
	Replace(u *url.URL)
}

// Syncer tells the backend to mirror the logged-in identity.
type Syncer interface {
	SyncUser(ctx context.Context, accessToken string) error
}
