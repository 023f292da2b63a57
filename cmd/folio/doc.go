// Package main hosts the Folio CLI.
//
// Commands search the locally cached oracle rulings, refresh the cache from
// the configured corpus URL, look up card scans, and manage the cache and
// configuration files. Rendering lives here; the cache, filters and lookups
// live in internal packages.
package main
