package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	identitydomain "identity-sync/internal/identity/domain"
	"identity-sync/internal/security"
	"identity-sync/internal/user/repository"
	"identity-sync/internal/user/service"
)

const (
	testIssuerURL = "https://tenant.example.com/"
	testAudience  = "https://api.example.com"
)

type profileStub struct{ email string }

func (p profileStub) FetchProfile(ctx context.Context, token string) (*identitydomain.ExternalIdentity, error) {
	return &identitydomain.ExternalIdentity{Subject: "auth0|abc123", Email: p.email}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *security.TestIssuer, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	iss, err := security.NewTestIssuer("k1", testIssuerURL, testAudience)
	if err != nil {
		t.Fatalf("NewTestIssuer: %v", err)
	}
	cache := security.NewKeyCache(security.NewStaticKeyFetcher(iss.SigningKey()), security.KeyCacheOptions{})
	repo := repository.NewMemoryRepository()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRouter(Deps{
		Verifier:    security.NewVerifier(cache, testIssuerURL, testAudience),
		Sync:        service.NewSyncService(repo, profileStub{email: "a@example.com"}),
		Users:       service.NewUserService(repo, nil),
		FrontendURL: "http://localhost:4200",
		StaticDir:   dir,
	})
	return r, iss, dir
}

func serve(r http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_SyncRequiresToken(t *testing.T) {
	r, iss, _ := newTestRouter(t)

	if w := serve(r, http.MethodPost, "/api/user/sync", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("sync without token = %d, want 401", w.Code)
	}

	token, err := iss.Token("auth0|abc123")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	w := serve(r, http.MethodPost, "/api/user/sync", token)
	if w.Code != http.StatusOK {
		t.Fatalf("sync = %d (%s)", w.Code, w.Body.String())
	}
	var body struct {
		User struct {
			ID         int64  `json:"id"`
			Email      string `json:"email"`
			ExternalID string `json:"external_id"`
		} `json:"user"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.ID != 1 || body.User.Email != "a@example.com" || body.User.ExternalID != "auth0|abc123" {
		t.Errorf("user = %+v", body.User)
	}
	if body.Message != "User created successfully" {
		t.Errorf("message = %q", body.Message)
	}

	w = serve(r, http.MethodGet, "/api/user/profile", token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "This is a protected route") {
		t.Errorf("profile = %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_Probes(t *testing.T) {
	r, _, _ := newTestRouter(t)
	for _, p := range []string{"/healthz", "/readyz"} {
		if w := serve(r, http.MethodGet, p, ""); w.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200", p, w.Code)
		}
	}
}

func TestRouter_SPAFallback(t *testing.T) {
	r, _, _ := newTestRouter(t)
	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/", http.StatusOK, "<html>app</html>"},
		{"/dashboard/settings", http.StatusOK, "<html>app</html>"},
		{"/main.js", http.StatusOK, "console.log(1)"},
		{"/missing.png", http.StatusNotFound, ""},
		{"/../../etc/passwd", http.StatusBadRequest, ""},
		{"/assets/../main.js", http.StatusBadRequest, ""},
		{"/api/unknown", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		w := serve(r, http.MethodGet, tt.path, "")
		if w.Code != tt.wantCode {
			t.Errorf("%s status = %d, want %d", tt.path, w.Code, tt.wantCode)
		}
		if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
			t.Errorf("%s body = %q, want %q", tt.path, w.Body.String(), tt.wantBody)
		}
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	r, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/user/sync", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", w.Code)
	}
}
