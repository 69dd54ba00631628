package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/hstoklosa/sentix-sub000/internal/auth"
	"github.com/hstoklosa/sentix-sub000/internal/batch"
	"github.com/hstoklosa/sentix-sub000/internal/conn"
)

// Status is the externally observable connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusClosing      Status = "closing"

	// StatusAuthFailed is terminal: the connect URL could not be
	// minted. Requires external re-authentication and an explicit
	// Connect.
	StatusAuthFailed Status = "auth_failed"

	// StatusReconnectExhausted is terminal: the bounded reconnect
	// attempts ran out. Recoverable only via an explicit Connect.
	StatusReconnectExhausted Status = "reconnect_exhausted"
)

// Terminal reports whether the engine stops retrying in this state.
func (s Status) Terminal() bool {
	return s == StatusAuthFailed || s == StatusReconnectExhausted
}

// Dialer produces one connected client per connection attempt.
type Dialer func(ctx context.Context) (conn.Client, error)

// NewDialer builds the production dialer: mint the connect URL from
// the provider, then dial a fresh websocket client.
func NewDialer(provider auth.URLProvider, cfg conn.Config, logger *slog.Logger) Dialer {
	return func(ctx context.Context) (conn.Client, error) {
		url, err := provider.ConnectURL(ctx)
		if err != nil {
			return nil, err
		}

		clientCfg := cfg
		clientCfg.URL = url
		client := conn.NewClient(clientCfg, logger)
		if err := client.Connect(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	}
}

// Config tunes the engine.
type Config struct {
	// Pinned topics are pre-acquired with a floor refcount of 1.
	Pinned []string

	// Batch tunes the debounce scheduler.
	Batch batch.Config

	// Heartbeat is the liveness frame interval while Open; 0 disables.
	Heartbeat time.Duration

	// DialTimeout bounds one connection attempt, URL mint included.
	DialTimeout time.Duration

	// ReconnectBase and ReconnectMax bound the exponential backoff
	// between reconnect attempts after an unrequested close.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration

	// ReconnectAttempts bounds consecutive failed attempts before the
	// engine parks in StatusReconnectExhausted.
	ReconnectAttempts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Batch:             batch.DefaultConfig(),
		Heartbeat:         30 * time.Second,
		DialTimeout:       10 * time.Second,
		ReconnectBase:     1 * time.Second,
		ReconnectMax:      60 * time.Second,
		ReconnectAttempts: 10,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Batch.Quiet == 0 {
		c.Batch.Quiet = def.Batch.Quiet
	}
	if c.Batch.QuietMax == 0 {
		c.Batch.QuietMax = def.Batch.QuietMax
	}
	if c.Batch.MaxWait == 0 {
		c.Batch.MaxWait = def.Batch.MaxWait
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = def.ReconnectBase
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = def.ReconnectMax
	}
	if c.ReconnectAttempts == 0 {
		c.ReconnectAttempts = def.ReconnectAttempts
	}
}
