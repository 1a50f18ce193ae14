package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func captureServer(t *testing.T, status int, got *PushRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(status)
	}))
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	defer srv.Close()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw := []byte(`{"id":"e1","type":"user.created","subject":"auth0|abc","source":"sync","created_at":"2024-05-01T12:00:00Z"}`)
	if err := NewClient(srv.URL+"/").PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != DefaultJob || s.Stream["event_type"] != "user.created" || s.Stream["source"] != "sync" {
		t.Errorf("labels = %v", s.Stream)
	}
	if _, ok := s.Stream["subject"]; ok {
		t.Error("subject must not be a label")
	}
	if len(s.Values) != 1 || s.Values[0][1] != string(raw) {
		t.Fatalf("values = %v", s.Values)
	}
	if want := created.UnixNano(); s.Values[0][0] != formatNs(want) {
		t.Errorf("timestamp = %s, want %d", s.Values[0][0], want)
	}
}

func TestPushEventJSON_UnparsedLine(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	defer srv.Close()

	if err := NewClient(srv.URL).PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams[0].Stream) != 1 {
		t.Errorf("labels = %v, want job only", got.Streams[0].Stream)
	}
}

func TestPush_Errors(t *testing.T) {
	if err := (&Client{}).Push(context.Background(), time.Now(), "x", nil); err == nil {
		t.Error("empty base URL should fail")
	}
	var got PushRequest
	srv := captureServer(t, http.StatusBadRequest, &got)
	defer srv.Close()
	if err := NewClient(srv.URL).Push(context.Background(), time.Now(), "x", map[string]string{"k": "a b"}); err == nil {
		t.Error("non-2xx should fail")
	}
	if got.Streams[0].Stream["k"] != "a_b" {
		t.Errorf("sanitized label = %q", got.Streams[0].Stream["k"])
	}
}

func formatNs(ns int64) string {
	b, _ := json.Marshal(ns)
	return string(b)
}
