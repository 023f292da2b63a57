package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRulings(); err != nil {
		return err
	}
	c.normalizeImages()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRulings() error {
	if value, ok := os.LookupEnv("FOLIO_RULINGS_SOURCE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Rulings.SourceURL = value
	}
	c.Rulings.SourceURL = strings.TrimSpace(c.Rulings.SourceURL)
	c.Rulings.Store = strings.ToLower(strings.TrimSpace(c.Rulings.Store))
	if c.Rulings.Store == "" {
		c.Rulings.Store = defaultStore
	}
	if c.Rulings.FetchTimeoutSeconds <= 0 {
		c.Rulings.FetchTimeoutSeconds = defaultFetchTimeoutSeconds
	}

	cacheFile := strings.TrimSpace(c.Rulings.CacheFile)
	if cacheFile == "" {
		name := "rulings.json"
		if c.Rulings.Store == StoreSQLite {
			name = "rulings.db"
		}
		c.Rulings.CacheFile = filepath.Join(c.Paths.CacheDir, name)
		return nil
	}
	expanded, err := expandPath(cacheFile)
	if err != nil {
		return fmt.Errorf("rulings.cache_file: %w", err)
	}
	c.Rulings.CacheFile = expanded
	return nil
}

func (c *Config) normalizeImages() {
	c.Images.SearchURL = strings.TrimSpace(c.Images.SearchURL)
	if c.Images.TimeoutSeconds <= 0 {
		c.Images.TimeoutSeconds = defaultImageTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
