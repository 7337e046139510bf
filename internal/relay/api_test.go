package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fastAPI trims the HTTP retry waits so error-path tests stay quick.
func fastAPI(baseURL, key string) *API {
	api := NewAPI(baseURL, key)
	api.client.RetryWaitMin = time.Millisecond
	api.client.RetryWaitMax = 5 * time.Millisecond
	return api
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/sessions" {
			t.Errorf("expected /v1/sessions, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if strings.TrimSpace(string(body)) != "{}" {
			t.Errorf("expected empty JSON body, got %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"token": "abc123",
			"host_websocket_url": "wss://relay.example/v1/sessions/abc123/host",
			"client_websocket_url": "wss://relay.example/v1/sessions/abc123/client",
			"expires_in": 600
		}`)
	}))
	defer srv.Close()

	sess, err := fastAPI(srv.URL, "").CreateSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Token != "abc123" {
		t.Errorf("expected token abc123, got %q", sess.Token)
	}
	if sess.HostURL != "wss://relay.example/v1/sessions/abc123/host" {
		t.Errorf("unexpected host url %q", sess.HostURL)
	}
	if sess.ClientURL != "wss://relay.example/v1/sessions/abc123/client" {
		t.Errorf("unexpected client url %q", sess.ClientURL)
	}
	if sess.ExpiresIn != 10*time.Minute {
		t.Errorf("expected 10m expiry, got %v", sess.ExpiresIn)
	}
}

func TestCreateSession_BearerKey(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		io.WriteString(w, `{"token":"t","host_websocket_url":"wss://r/h","expires_in":60}`)
	}))
	defer srv.Close()

	if _, err := fastAPI(srv.URL, "sekrit").CreateSession(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Bearer sekrit" {
		t.Errorf("expected Bearer sekrit, got %q", got)
	}
}

func TestCreateSession_NoKeyNoHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		io.WriteString(w, `{"token":"t","host_websocket_url":"wss://r/h","expires_in":60}`)
	}))
	defer srv.Close()

	if _, err := fastAPI(srv.URL, "").CreateSession(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected no Authorization header, got %q", got)
	}
}

func TestCreateSession_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "capacity exceeded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fastAPI(srv.URL, "").CreateSession(context.Background())
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	var sessErr *SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("expected *SessionError, got %T: %v", err, err)
	}
	if sessErr.Status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", sessErr.Status)
	}
	if !strings.Contains(sessErr.Body, "capacity exceeded") {
		t.Errorf("expected body in error, got %q", sessErr.Body)
	}
	if !strings.Contains(sessErr.Error(), "503") {
		t.Errorf("expected status in message, got %q", sessErr.Error())
	}
}

func TestCreateSession_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "try again", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, `{"token":"t","host_websocket_url":"wss://r/h","expires_in":60}`)
	}))
	defer srv.Close()

	sess, err := fastAPI(srv.URL, "").CreateSession(context.Background())
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if sess.Token != "t" {
		t.Errorf("unexpected token %q", sess.Token)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestCreateSession_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"token": `)
	}))
	defer srv.Close()

	if _, err := fastAPI(srv.URL, "").CreateSession(context.Background()); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestCreateSession_MissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"expires_in": 60}`)
	}))
	defer srv.Close()

	if _, err := fastAPI(srv.URL, "").CreateSession(context.Background()); err == nil {
		t.Fatal("expected error when token and host url are missing")
	}
}

func TestDeriveClientURL(t *testing.T) {
	tests := []struct {
		base  string
		token string
		want  string
	}{
		{"https://relay.example", "tok1", "wss://relay.example/v1/sessions/tok1/client"},
		{"https://relay.example/", "tok1", "wss://relay.example/v1/sessions/tok1/client"},
		{"http://127.0.0.1:8080", "tok2", "ws://127.0.0.1:8080/v1/sessions/tok2/client"},
		{"wss://relay.example", "tok3", "wss://relay.example/v1/sessions/tok3/client"},
		{"https://relay.example/base", "tok4", "wss://relay.example/base/v1/sessions/tok4/client"},
	}
	for _, tt := range tests {
		got, err := DeriveClientURL(tt.base, tt.token)
		if err != nil {
			t.Errorf("DeriveClientURL(%q, %q): unexpected error %v", tt.base, tt.token, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DeriveClientURL(%q, %q) = %q, want %q", tt.base, tt.token, got, tt.want)
		}
	}
}

func TestDeriveClientURL_BadScheme(t *testing.T) {
	if _, err := DeriveClientURL("ftp://relay.example", "tok"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
