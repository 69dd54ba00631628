package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultVariant           = "ticker"
	DefaultStream            = "miniticker"
	DefaultDebounceQuiet     = 150 * time.Millisecond
	DefaultDebounceQuietMax  = 600 * time.Millisecond
	DefaultDebounceMaxWait   = 2 * time.Second
	DefaultHeartbeat         = 30 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultReconnectBase     = 1 * time.Second
	DefaultReconnectMax      = 60 * time.Second
	DefaultReconnectAttempts = 10
	DefaultStaleAfter        = 90 * time.Second
	DefaultBufferSize        = 1024
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
)

func (c *Config) applyDefaults() {
	if c.Feed.Variant == "" {
		c.Feed.Variant = DefaultVariant
	}
	if c.Feed.Stream == "" {
		c.Feed.Stream = DefaultStream
	}

	if c.Engine.DebounceQuiet == 0 {
		c.Engine.DebounceQuiet = DefaultDebounceQuiet
	}
	if c.Engine.DebounceQuietMax == 0 {
		c.Engine.DebounceQuietMax = DefaultDebounceQuietMax
	}
	if c.Engine.DebounceMaxWait == 0 {
		c.Engine.DebounceMaxWait = DefaultDebounceMaxWait
	}
	if c.Engine.Heartbeat == 0 {
		c.Engine.Heartbeat = DefaultHeartbeat
	}
	if c.Engine.DialTimeout == 0 {
		c.Engine.DialTimeout = DefaultDialTimeout
	}
	if c.Engine.ReconnectBase == 0 {
		c.Engine.ReconnectBase = DefaultReconnectBase
	}
	if c.Engine.ReconnectMax == 0 {
		c.Engine.ReconnectMax = DefaultReconnectMax
	}
	if c.Engine.ReconnectAttempts == 0 {
		c.Engine.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.Engine.StaleAfter == 0 {
		c.Engine.StaleAfter = DefaultStaleAfter
	}
	if c.Engine.BufferSize == 0 {
		c.Engine.BufferSize = DefaultBufferSize
	}

	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.Enabled {
		applyDBDefaults(&c.Recorder.Database)
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
