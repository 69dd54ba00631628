// Package auth supplies the connect URL for the upstream websocket.
//
// The ticker feed connects to a fixed public URL; the news feed first
// asks an authenticated REST endpoint to mint a one-time connection
// URL or token. Authentication flows themselves are out of scope here,
// only their output is consumed.
package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

// AuthError marks a failed token mint. It is terminal for the engine:
// reconnecting cannot help until the caller re-authenticates.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("auth: token mint failed (status %d)", e.StatusCode)
}

// URLProvider yields the websocket URL for one connection attempt. It
// is consulted on every attempt so one-time tokens stay fresh.
type URLProvider interface {
	ConnectURL(ctx context.Context) (string, error)
}

// Static is a fixed connect URL with no handshake.
type Static string

func (s Static) ConnectURL(context.Context) (string, error) {
	return string(s), nil
}

// TokenClient mints one-time connection URLs from a REST endpoint.
type TokenClient struct {
	endpoint   string // token mint endpoint
	socketURL  string // base websocket URL when the mint returns a bare token
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// TokenClientOption configures a TokenClient.
type TokenClientOption func(*TokenClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) TokenClientOption {
	return func(c *TokenClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) TokenClientOption {
	return func(c *TokenClient) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TokenClientOption {
	return func(c *TokenClient) {
		c.logger = logger
	}
}

// NewTokenClient creates a minting provider. socketURL is the base
// websocket URL used when the endpoint returns a token rather than a
// full URL.
func NewTokenClient(endpoint, socketURL, apiKey string, opts ...TokenClientOption) *TokenClient {
	c := &TokenClient{
		endpoint:  endpoint,
		socketURL: socketURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// mintResponse is the body of a successful mint.
type mintResponse struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// ConnectURL mints a one-time connection URL. A missing or rejected
// API key surfaces as *AuthError and is never retried internally.
func (c *TokenClient) ConnectURL(ctx context.Context) (string, error) {
	if c.apiKey == "" {
		return "", &AuthError{Message: "missing API key"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("build mint request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mint connect url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read mint response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{StatusCode: resp.StatusCode, Message: "token rejected"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("mint connect url: unexpected status %d", resp.StatusCode)
	}

	var mint mintResponse
	if err := json.Unmarshal(body, &mint); err != nil {
		return "", fmt.Errorf("parse mint response: %w", err)
	}

	switch {
	case mint.URL != "":
		return mint.URL, nil
	case mint.Token != "":
		u, err := url.Parse(c.socketURL)
		if err != nil {
			return "", fmt.Errorf("parse socket url: %w", err)
		}
		q := u.Query()
		q.Set("token", mint.Token)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	return "", &AuthError{StatusCode: resp.StatusCode, Message: "mint response carried no url or token"}
}
