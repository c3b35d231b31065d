package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Stream.Interval != "100ms" && c.Stream.Interval != "10ms" {
		return fmt.Errorf("stream.interval must be 100ms or 10ms, got %q", c.Stream.Interval)
	}

	if len(c.Symbols) == 0 {
		return errors.New("symbols must list at least one pair")
	}
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			return errors.New("symbols must not contain empty entries")
		}
	}

	if c.UserData.Enabled {
		if c.API.APIKey == "" {
			return errors.New("api.api_key is required when user_data is enabled")
		}
		if c.API.SecretKey == "" {
			return errors.New("api.secret_key is required when user_data is enabled")
		}
	}

	if c.Capture.Enabled {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
		if c.Capture.BatchSize < 1 {
			return errors.New("capture.batch_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
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
