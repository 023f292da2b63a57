package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRulings(); err != nil {
		return err
	}
	if err := c.validateImages(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRulings() error {
	if err := validateHTTPURL("rulings.source_url", c.Rulings.SourceURL); err != nil {
		return err
	}
	if c.Rulings.RefreshIntervalDays <= 0 {
		return errors.New("rulings.refresh_interval_days must be positive")
	}
	switch c.Rulings.Store {
	case StoreJSON, StoreSQLite:
	default:
		return fmt.Errorf("rulings.store: unsupported value %q (want %q or %q)", c.Rulings.Store, StoreJSON, StoreSQLite)
	}
	if c.Rulings.CacheFile == "" {
		return errors.New("rulings.cache_file must be set")
	}
	return nil
}

func (c *Config) validateImages() error {
	if c.Images.CacheTTLMinutes < 0 {
		return fmt.Errorf("images.cache_ttl_minutes must be zero or positive")
	}
	if !c.Images.Enabled {
		return nil
	}
	return validateHTTPURL("images.search_url", c.Images.SearchURL)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateHTTPURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s must be set", field)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}
