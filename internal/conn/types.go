package conn

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrStale         = errors.New("connection stale (no traffic)")
	ErrAlreadyClosed = errors.New("already closed")
)

// Message wraps raw frame bytes with the local receive timestamp.
type Message struct {
	Data       []byte
	ReceivedAt time.Time
}

// Config configures a websocket client.
type Config struct {
	URL              string        // upstream websocket URL, token included if any
	Header           http.Header   // extra handshake headers
	HandshakeTimeout time.Duration // dial deadline
	WriteTimeout     time.Duration // write deadline for sends
	StaleAfter       time.Duration // max silence before the socket is declared dead; 0 disables
	BufferSize       int           // message channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		StaleAfter:       90 * time.Second,
		BufferSize:       1024,
	}
}
