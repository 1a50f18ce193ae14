// Client is a loopback login client: it prints the provider login URL, receives the redirect on a local
// callback server, syncs the user with the backend and prints the backend profile.
// Requires AUTH0_DOMAIN, AUTH0_AUDIENCE and AUTH0_CLIENT_ID; -redirect must be registered as a callback URL
// with the provider and point at a free local port.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"identity-sync/internal/client/api"
	"identity-sync/internal/client/authflow"
	"identity-sync/internal/config"
	"identity-sync/internal/logging"
)

const loginTimeout = 5 * time.Minute

// printNavigator "navigates" by printing the URL for the user to open.
type printNavigator struct{}

func (printNavigator) Navigate(u string) error {
	fmt.Printf("\nOpen this URL in your browser:\n\n  %s\n\n", u)
	return nil
}

// callbackLocation is the URL the browser was last redirected to.
type callbackLocation struct {
	mu sync.Mutex
	u  *url.URL
}

func (l *callbackLocation) Current() *url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.u
}

func (l *callbackLocation) Replace(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.u = u
}

func main() {
	apiURL := flag.String("api", "http://localhost:8000", "Backend base URL")
	redirect := flag.String("redirect", "http://127.0.0.1:8765/callback", "Loopback redirect URI")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, false)
	if err := run(cfg, *apiURL, *redirect, logger); err != nil {
		logger.Error("client", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, apiURL, redirect string, logger *slog.Logger) error {
	redirectURL, err := url.Parse(redirect)
	if err != nil || redirectURL.Host == "" {
		return fmt.Errorf("invalid -redirect %q", redirect)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	backend := api.NewClient(apiURL)
	loc := &callbackLocation{u: redirectURL}
	auth := authflow.New(authflow.Config{
		Provider: authflow.ProviderConfig{
			Domain:      cfg.Auth0Domain,
			ClientID:    cfg.Auth0ClientID,
			Audience:    cfg.Auth0Audience,
			RedirectURI: redirect,
		},
		Origin: cfg.FrontendURL,
	}, authflow.Auth0Factory(nil), printNavigator{}, loc, backend, logger)

	if err := auth.Init(ctx); err != nil {
		return err
	}

	callbacks := make(chan *url.URL, 1)
	ln, err := net.Listen("tcp", redirectURL.Host)
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != redirectURL.Path {
			http.NotFound(w, r)
			return
		}
		u := *redirectURL
		u.RawQuery = r.URL.RawQuery
		select {
		case callbacks <- &u:
			fmt.Fprintln(w, "Login received; you can close this window.")
		default:
			http.Error(w, "login already in progress", http.StatusConflict)
		}
	}), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server", "error", err)
		}
	}()
	defer srv.Close()

	if err := auth.Login(ctx); err != nil {
		return err
	}
	select {
	case u := <-callbacks:
		loc.Replace(u)
	case <-ctx.Done():
		return fmt.Errorf("waiting for login: %w", ctx.Err())
	}
	if err := auth.HandleRedirect(ctx); err != nil {
		return err
	}
	if !auth.IsAuthenticated() {
		return errors.New("login did not complete")
	}
	if p := auth.Profile(); p != nil {
		logger.Info("logged in", "subject", p.Subject, "email", p.Email)
	}

	token, err := auth.AccessToken(ctx)
	if err != nil {
		return err
	}
	profile, err := backend.Profile(ctx, token)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(profile)
}
