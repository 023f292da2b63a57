// Package logging assembles structured slog loggers and attribute helpers used
// across Folio.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so background jobs can tag log
// lines with their job and correlation IDs. A no-op logger is provided for
// tests and wiring code that must not fail.
package logging
