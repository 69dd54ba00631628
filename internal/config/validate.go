package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Feed.Variant {
	case "ticker", "news":
	default:
		return fmt.Errorf("feed.variant must be \"ticker\" or \"news\", got %q", c.Feed.Variant)
	}

	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if c.Feed.AuthEndpoint != "" && c.Feed.APIKey == "" {
		return errors.New("feed.api_key is required when feed.auth_endpoint is set")
	}

	if c.Engine.DebounceQuiet > c.Engine.DebounceQuietMax {
		return fmt.Errorf("engine.debounce_quiet (%s) cannot exceed engine.debounce_quiet_max (%s)",
			c.Engine.DebounceQuiet, c.Engine.DebounceQuietMax)
	}
	if c.Engine.DebounceMaxWait < c.Engine.DebounceQuiet {
		return errors.New("engine.debounce_max_wait must be >= engine.debounce_quiet")
	}
	if c.Engine.ReconnectBase > c.Engine.ReconnectMax {
		return fmt.Errorf("engine.reconnect_base (%s) cannot exceed engine.reconnect_max (%s)",
			c.Engine.ReconnectBase, c.Engine.ReconnectMax)
	}
	if c.Engine.ReconnectAttempts < 1 {
		return errors.New("engine.reconnect_attempts must be >= 1")
	}
	if c.Engine.BufferSize < 1 {
		return errors.New("engine.buffer_size must be >= 1")
	}

	if c.Recorder.Enabled {
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if err := c.Recorder.Database.validate("recorder.database"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
