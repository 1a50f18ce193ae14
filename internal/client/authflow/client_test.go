package authflow

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	identitydomain "identity-sync/internal/identity/domain"
)

// fakeProvider simulates a provider session; HandleRedirectCallback logs the user in.
type fakeProvider struct {
	mu          sync.Mutex
	loggedIn    bool
	callbackErr error
	tokenErr    error
	callbacks   int
	logouts     int
}

func (f *fakeProvider) IsAuthenticated(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn, nil
}

func (f *fakeProvider) Profile(context.Context) (*identitydomain.ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loggedIn {
		return nil, nil
	}
	return &identitydomain.ExternalIdentity{Subject: "auth0|abc123", Email: "a@example.com"}, nil
}

func (f *fakeProvider) LoginURL(context.Context) (string, error) {
	return "https://tenant.example.com/authorize?client_id=c", nil
}

func (f *fakeProvider) HandleRedirectCallback(ctx context.Context, u *url.URL) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks++
	if f.callbackErr != nil {
		return f.callbackErr
	}
	f.loggedIn = true
	return nil
}

func (f *fakeProvider) AccessToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	if !f.loggedIn {
		return "", ErrNoSession
	}
	return "access-token", nil
}

func (f *fakeProvider) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = false
	f.logouts++
	return nil
}

func (f *fakeProvider) LogoutURL(returnTo string) string {
	return "https://tenant.example.com/v2/logout?returnTo=" + url.QueryEscape(returnTo)
}

type fakeNav struct{ urls []string }

func (n *fakeNav) Navigate(u string) error {
	n.urls = append(n.urls, u)
	return nil
}

type fakeLocation struct{ u *url.URL }

func (l *fakeLocation) Current() *url.URL { return l.u }
func (l *fakeLocation) Replace(u *url.URL) { l.u = u }

type fakeSyncer struct {
	calls  int
	tokens []string
	err    error
}

func (s *fakeSyncer) SyncUser(ctx context.Context, token string) error {
	s.calls++
	s.tokens = append(s.tokens, token)
	return s.err
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func newTestClient(p *fakeProvider, loc *fakeLocation, s *fakeSyncer) (*Client, *fakeNav) {
	nav := &fakeNav{}
	factory := func(ctx context.Context, cfg ProviderConfig) (Provider, error) { return p, nil }
	var syncer Syncer
	if s != nil {
		syncer = s
	}
	return New(Config{Origin: "http://localhost:4200"}, factory, nav, loc, syncer, nil), nav
}

func TestInit_Anonymous(t *testing.T) {
	c, _ := newTestClient(&fakeProvider{}, &fakeLocation{u: mustURL(t, "http://localhost:4200/")}, &fakeSyncer{})
	if c.State() != StateUninitialized {
		t.Fatalf("initial state = %s", c.State())
	}
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if c.State() != StateAnonymous || c.Profile() != nil {
		t.Errorf("state = %s profile = %v, want anonymous nil", c.State(), c.Profile())
	}
	if err := c.Init(context.Background()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init err = %v", err)
	}
}

func TestInit_ExistingSessionLoadsProfile(t *testing.T) {
	syncer := &fakeSyncer{}
	c, _ := newTestClient(&fakeProvider{loggedIn: true}, &fakeLocation{u: mustURL(t, "http://localhost:4200/home")}, syncer)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !c.IsAuthenticated() {
		t.Fatalf("state = %s, want authenticated", c.State())
	}
	if p := c.Profile(); p == nil || p.Subject != "auth0|abc123" {
		t.Errorf("profile = %+v", p)
	}
	if syncer.calls != 0 {
		t.Errorf("sync calls = %d, want 0 without a redirect", syncer.calls)
	}
}

func TestInit_RedirectSyncsOnceAndCleansURL(t *testing.T) {
	p := &fakeProvider{}
	loc := &fakeLocation{u: mustURL(t, "http://localhost:4200/?code=abc&state=xyz&tab=2")}
	syncer := &fakeSyncer{}
	c, _ := newTestClient(p, loc, syncer)

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !c.IsAuthenticated() {
		t.Fatalf("state = %s, want authenticated", c.State())
	}
	if syncer.calls != 1 || syncer.tokens[0] != "access-token" {
		t.Errorf("sync calls = %d tokens = %v", syncer.calls, syncer.tokens)
	}
	q := loc.u.Query()
	if q.Has("code") || q.Has("state") || q.Get("tab") != "2" {
		t.Errorf("url after redirect = %s", loc.u)
	}

	if err := c.HandleRedirect(context.Background()); err != nil {
		t.Fatalf("HandleRedirect: %v", err)
	}
	if syncer.calls != 1 || p.callbacks != 1 {
		t.Errorf("after second HandleRedirect: sync calls = %d callbacks = %d, want 1 1", syncer.calls, p.callbacks)
	}
}

func TestHandleRedirect_SyncFailureIsNotReturned(t *testing.T) {
	loc := &fakeLocation{u: mustURL(t, "http://localhost:4200/?code=abc&state=xyz")}
	syncer := &fakeSyncer{err: errors.New("backend down")}
	c, _ := newTestClient(&fakeProvider{}, loc, syncer)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !c.IsAuthenticated() || syncer.calls != 1 {
		t.Errorf("state = %s sync calls = %d", c.State(), syncer.calls)
	}
}

func TestHandleRedirect_CallbackFailure(t *testing.T) {
	p := &fakeProvider{callbackErr: ErrStateMismatch}
	loc := &fakeLocation{u: mustURL(t, "http://localhost:4200/?code=abc&state=bad")}
	syncer := &fakeSyncer{}
	c, _ := newTestClient(p, loc, syncer)
	if err := c.Init(context.Background()); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("Init err = %v, want ErrStateMismatch", err)
	}
	if c.State() != StateAnonymous || syncer.calls != 0 {
		t.Errorf("state = %s sync calls = %d", c.State(), syncer.calls)
	}
	if loc.u.Query().Has("code") {
		t.Error("code left in URL after failed callback")
	}
}

func TestLoginAndLogout(t *testing.T) {
	p := &fakeProvider{loggedIn: true}
	c, nav := newTestClient(p, &fakeLocation{u: mustURL(t, "http://localhost:4200/")}, nil)
	if err := c.Login(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Login before Init err = %v", err)
	}
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if c.State() != StateAnonymous || c.Profile() != nil || p.logouts != 1 {
		t.Errorf("after logout state = %s profile = %v logouts = %d", c.State(), c.Profile(), p.logouts)
	}
	want := []string{
		"https://tenant.example.com/authorize?client_id=c",
		"https://tenant.example.com/v2/logout?returnTo=http%3A%2F%2Flocalhost%3A4200",
	}
	if len(nav.urls) != 2 || nav.urls[0] != want[0] || nav.urls[1] != want[1] {
		t.Errorf("navigations = %v, want %v", nav.urls, want)
	}
}

func TestAccessToken(t *testing.T) {
	p := &fakeProvider{loggedIn: true}
	c, _ := newTestClient(p, &fakeLocation{u: mustURL(t, "http://localhost:4200/")}, nil)
	if _, err := c.AccessToken(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("AccessToken before Init err = %v", err)
	}
	_ = c.Init(context.Background())

	tok, err := c.AccessToken(context.Background())
	if err != nil || tok != "access-token" {
		t.Fatalf("AccessToken = %q, %v", tok, err)
	}

	renewErr := errors.New("invalid_grant")
	p.mu.Lock()
	p.tokenErr = renewErr
	p.mu.Unlock()
	_, err = c.AccessToken(context.Background())
	if !errors.Is(err, ErrLoginRequired) || !errors.Is(err, renewErr) {
		t.Errorf("AccessToken err = %v, want ErrLoginRequired wrapping the provider error", err)
	}
}

func TestInit_FactoryError(t *testing.T) {
	nav := &fakeNav{}
	factory := func(ctx context.Context, cfg ProviderConfig) (Provider, error) { return nil, errors.New("bad config") }
	c := New(Config{}, factory, nav, &fakeLocation{}, nil, nil)
	if err := c.Init(context.Background()); err == nil {
		t.Fatal("expected Init error")
	}
	if c.State() != StateUninitialized {
		t.Errorf("state = %s, want uninitialized", c.State())
	}
}
