// Package config defines the streamd configuration schema: a YAML file
// with ${VAR} environment expansion, defaults, and validation.
package config

import "time"

// Config is the root streamd configuration.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Engine   EngineConfig   `yaml:"engine"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// InstanceConfig identifies this streamd instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig selects and locates the upstream feed.
type FeedConfig struct {
	// Variant picks the wire protocol: "ticker" or "news".
	Variant string `yaml:"variant"`

	// URL is the websocket URL (ticker), or the base websocket URL the
	// minted token is appended to (news).
	URL string `yaml:"url"`

	// AuthEndpoint mints one-time connection URLs; empty means the
	// socket URL is used directly.
	AuthEndpoint string `yaml:"auth_endpoint"`

	// APIKey authenticates against AuthEndpoint.
	APIKey string `yaml:"api_key"`

	// Stream is the default stream suffix for bare ticker symbols.
	Stream string `yaml:"stream"`

	// Pinned topics are subscribed at startup and survive releases.
	Pinned []string `yaml:"pinned"`
}

// EngineConfig tunes the subscription engine.
type EngineConfig struct {
	DebounceQuiet     time.Duration `yaml:"debounce_quiet"`
	DebounceQuietMax  time.Duration `yaml:"debounce_quiet_max"`
	DebounceMaxWait   time.Duration `yaml:"debounce_max_wait"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	ReconnectBase     time.Duration `yaml:"reconnect_base"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	BufferSize        int           `yaml:"buffer_size"`
}

// RecorderConfig tunes the optional event recorder.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig locates the recorder database.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
