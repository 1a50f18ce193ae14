// Package authflow drives the login lifecycle of a public client: provider session, redirect handling,
// the one-time backend sync after login, and silent token renewal.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	identitydomain "identity-sync/internal/identity/domain"
)

// State is the client's authentication state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAnonymous
	StateAuthenticated
	StateHandlingRedirect
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateHandlingRedirect:
		return "handling_redirect"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrLoginRequired is returned by AccessToken when no token can be obtained without user interaction.
	ErrLoginRequired = errors.New("login required")
	// ErrNotInitialized is returned by operations that need the provider before Init has completed.
	ErrNotInitialized = errors.New("auth client not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("auth client already initialized")
)

// Config configures a Client.
type Config struct {
	Provider ProviderConfig
	// Origin is where the provider returns the user after logout.
	Origin string
}

// Client is the login lifecycle state machine. Safe for concurrent use; no lock is held across provider calls.
type Client struct {
	cfg     Config
	factory ProviderFactory
	nav     Navigator
	loc     Location
	syncer  Syncer
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	provider Provider
	profile  *identitydomain.ExternalIdentity
}

// New returns an uninitialized Client. syncer may be nil; logger defaults to slog.Default().
func New(cfg Config, factory ProviderFactory, nav Navigator, loc Location, syncer Syncer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, factory: factory, nav: nav, loc: loc, syncer: syncer, logger: logger}
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAuthenticated reports whether the client is in the Authenticated state.
func (c *Client) IsAuthenticated() bool {
	return c.State() == StateAuthenticated
}

// Profile returns the current user's profile, or nil when anonymous.
func (c *Client) Profile() *identitydomain.ExternalIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// Init constructs the provider client, derives the initial state from its session and then handles a
// pending login redirect if the current URL carries one.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.state = StateInitializing
	c.mu.Unlock()

	p, err := c.factory(ctx, c.cfg.Provider)
	if err != nil {
		c.setState(StateUninitialized, nil)
		return fmt.Errorf("create provider client: %w", err)
	}
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()

	if err := c.refreshState(ctx, p); err != nil {
		return err
	}
	return c.HandleRedirect(ctx)
}

// HandleRedirect completes a login when the current URL has a code parameter. After a successful login the
// backend sync runs once; its failure is logged, not returned. code and state are then removed from the URL.
func (c *Client) HandleRedirect(ctx context.Context) error {
	p, err := c.currentProvider()
	if err != nil {
		return err
	}
	current := c.loc.Current()
	if current == nil || !current.Query().Has("code") {
		return nil
	}

	c.mu.Lock()
	c.state = StateHandlingRedirect
	c.mu.Unlock()

	callbackErr := p.HandleRedirectCallback(ctx, current)
	c.loc.Replace(stripCallbackParams(current))
	if err := c.refreshState(ctx, p); err != nil {
		return err
	}
	if callbackErr != nil {
		return fmt.Errorf("handle redirect callback: %w", callbackErr)
	}

	if c.State() == StateAuthenticated && c.syncer != nil {
		c.syncAfterLogin(ctx, p)
	}
	return nil
}

func (c *Client) syncAfterLogin(ctx context.Context, p Provider) {
	token, err := p.AccessToken(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "sync skipped: no access token", "error", err)
		return
	}
	if err := c.syncer.SyncUser(ctx, token); err != nil {
		c.logger.ErrorContext(ctx, "user sync failed", "error", err)
		return
	}
	c.logger.InfoContext(ctx, "user synced after login")
}

// Login sends the user agent to the provider's login page.
func (c *Client) Login(ctx context.Context) error {
	p, err := c.currentProvider()
	if err != nil {
		return err
	}
	u, err := p.LoginURL(ctx)
	if err != nil {
		return fmt.Errorf("build login url: %w", err)
	}
	return c.nav.Navigate(u)
}

// Logout clears the session and sends the user agent to the provider logout, returning to the configured origin.
func (c *Client) Logout(ctx context.Context) error {
	p, err := c.currentProvider()
	if err != nil {
		return err
	}
	if err := p.Logout(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.setState(StateAnonymous, nil)
	return c.nav.Navigate(p.LogoutURL(c.cfg.Origin))
}

// AccessToken returns a valid access token, renewing silently. Any failure wraps ErrLoginRequired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	p, err := c.currentProvider()
	if err != nil {
		return "", err
	}
	token, err := p.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLoginRequired, err)
	}
	return token, nil
}

func (c *Client) currentProvider() (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider == nil {
		return nil, ErrNotInitialized
	}
	return c.provider, nil
}

func (c *Client) refreshState(ctx context.Context, p Provider) error {
	ok, err := p.IsAuthenticated(ctx)
	if err != nil {
		c.setState(StateAnonymous, nil)
		return fmt.Errorf("check session: %w", err)
	}
	if !ok {
		c.setState(StateAnonymous, nil)
		return nil
	}
	profile, err := p.Profile(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "cached profile unavailable", "error", err)
	}
	c.setState(StateAuthenticated, profile)
	return nil
}

func (c *Client) setState(s State, profile *identitydomain.ExternalIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.profile = profile
}

// stripCallbackParams returns a copy of u without the code and state query parameters.
func stripCallbackParams(u *url.URL) *url.URL {
	out := *u
	q := out.Query()
	q.Del("code")
	q.Del("state")
	out.RawQuery = q.Encode()
	return &out
}
