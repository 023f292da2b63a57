// Package imagegrab resolves a card search to a scan image URL by scraping
// the configured image search page.
package imagegrab
