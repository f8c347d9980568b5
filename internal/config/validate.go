package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
// Missing feed credentials are a startup-fatal condition: the hub must
// refuse to run rather than hold subscriptions it can never serve.
func (c *HubConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if c.Feed.Key == "" {
		return errors.New("feed.key is required")
	}
	if c.Feed.Secret == "" {
		return errors.New("feed.secret is required")
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}

	if c.Enrichment.DataURL == "" {
		return errors.New("enrichment.data_url is required")
	}
	if c.Enrichment.ChartURL == "" {
		return errors.New("enrichment.chart_url is required")
	}
	if c.Enrichment.BarsLimit < 1 {
		return errors.New("enrichment.bars_limit must be >= 1")
	}

	if c.Server.SendBufferSize < 1 {
		return errors.New("server.send_buffer_size must be >= 1")
	}

	if c.Status.Port < 1 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}

	if c.Recorder.Enabled {
		if err := c.Recorder.Database.validate("recorder.database"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
	}

	return nil
}

func (db *DBConfig) validate(section string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", section)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", section)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", section)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", section)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", section, db.MinConns, db.MaxConns)
	}
	return nil
}
