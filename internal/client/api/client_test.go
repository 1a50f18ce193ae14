package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Sync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/user/sync" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":1,"email":"a@example.com","external_id":"auth0|abc123","created_at":"2024-01-01T00:00:00Z"},"message":"User created successfully"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL+"/").Sync(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.User.ID != 1 || res.User.ExternalID != "auth0|abc123" || res.Message != "User created successfully" {
		t.Errorf("res = %+v", res)
	}
}

func TestClient_Profile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"sub":"auth0|abc123"},"message":"This is a protected route"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Profile(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if res.User["sub"] != "auth0|abc123" {
		t.Errorf("user = %v", res.User)
	}
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"unauthorized","message":"Invalid token: Expired"}`, "Invalid token: Expired"},
		{"plain body", http.StatusBadGateway, `upstream down`, "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewClient(srv.URL).SyncUser(context.Background(), "tok")
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.message {
				t.Errorf("err = %+v", apiErr)
			}
		})
	}
}
