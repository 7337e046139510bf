package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Session is one relay-brokered sync session as returned by the relay.
type Session struct {
	Token     string
	HostURL   string
	ClientURL string
	ExpiresIn time.Duration
}

// SessionError is a non-2xx response from the relay. The body is kept
// verbatim for diagnostics; relays return plain-text or JSON errors.
type SessionError struct {
	Status int
	Body   string
}

func (e *SessionError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("relay returned status %d", e.Status)
	}
	return fmt.Sprintf("relay returned status %d: %s", e.Status, body)
}

// API calls the relay's HTTP endpoints. Transient transport errors and
// 5xx responses are retried a few times with jittered linear backoff
// before the caller sees the failure; the reconnect loop above this
// layer handles anything longer-lived.
type API struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

// NewAPI builds a relay API client. apiKey may be empty for relays that
// do not require authentication.
func NewAPI(baseURL, apiKey string) *API {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Backoff = retryablehttp.LinearJitterBackoff
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = retryLogger{}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// BaseURL reports the configured relay base URL without a trailing slash.
func (a *API) BaseURL() string { return a.baseURL }

// CreateSession asks the relay for a fresh sync session. Each call
// returns a new token; tokens are never reused across reconnects.
func (a *API) CreateSession(ctx context.Context) (*Session, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/sessions", strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read session response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SessionError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Token     string  `json:"token"`
		HostURL   string  `json:"host_websocket_url"`
		ClientURL string  `json:"client_websocket_url"`
		ExpiresIn float64 `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse session response: %w", err)
	}
	if payload.Token == "" || payload.HostURL == "" {
		return nil, fmt.Errorf("relay session response missing token or host url")
	}
	return &Session{
		Token:     payload.Token,
		HostURL:   payload.HostURL,
		ClientURL: payload.ClientURL,
		ExpiresIn: time.Duration(payload.ExpiresIn * float64(time.Second)),
	}, nil
}

// DeriveClientURL builds the WebSocket endpoint a joining device dials
// for a known session token: the relay base URL with the scheme swapped
// to ws/wss and the client path appended.
func DeriveClientURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/sessions/" + token + "/client"
	return u.String(), nil
}

// retryLogger bridges retryablehttp's leveled logger onto slog.
type retryLogger struct{}

func (retryLogger) Error(msg string, kv ...any) { slog.Error(msg, kv...) }
func (retryLogger) Warn(msg string, kv ...any)  { slog.Warn(msg, kv...) }
func (retryLogger) Info(msg string, kv ...any)  { slog.Debug(msg, kv...) }
func (retryLogger) Debug(msg string, kv ...any) { slog.Debug(msg, kv...) }
