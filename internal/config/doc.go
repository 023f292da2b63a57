// Package config loads, normalizes, and validates Folio configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the FOLIO_RULINGS_SOURCE_URL
// environment override. The Config type centralizes the corpus source, cache
// location and refresh interval, image search endpoint and logging knobs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
