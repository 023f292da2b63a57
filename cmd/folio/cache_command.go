package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"folio/internal/card"
	"folio/internal/config"
	"folio/internal/fileutil"
	"folio/internal/rulings"
)

type cacheStatusOutput struct {
	Store     string     `json:"store"`
	Path      string     `json:"path"`
	Cached    bool       `json:"cached"`
	Records   int        `json:"records"`
	Expired   bool       `json:"expired"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	SavedAt   *time.Time `json:"saved_at,omitempty"`
	SourceURL string     `json:"source_url,omitempty"`
}

type cacheExport struct {
	SourceURL  string        `json:"source_url" yaml:"source_url"`
	ExpiresAt  time.Time     `json:"expires_at" yaml:"expires_at"`
	ExportedAt time.Time     `json:"exported_at" yaml:"exported_at"`
	Records    []card.Ruling `json:"records" yaml:"records"`
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the rulings cache",
	}

	cacheCmd.AddCommand(newCacheStatusCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheExportCommand(ctx))

	return cacheCmd
}

func newCacheStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the rulings cache holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.rulingsCache()
			if err != nil {
				return err
			}
			defer ctx.close()

			status := cacheStatusOutput{Store: cache.StoreKind(), Path: cache.StorePath()}
			snap, err := cache.Stored(cmd.Context())
			switch {
			case err == nil:
				status.Cached = true
				status.Records = len(snap.Records)
				status.Expired = !time.Now().Before(snap.ExpiresAt)
				status.ExpiresAt = &snap.ExpiresAt
				if !snap.SavedAt.IsZero() {
					status.SavedAt = &snap.SavedAt
				}
				status.SourceURL = snap.SourceURL
			case errors.Is(err, rulings.ErrNoCache):
			default:
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range cacheStatusLines(status, colorize) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func cacheStatusLines(status cacheStatusOutput, colorize bool) []string {
	lines := []string{
		renderSectionHeader("Rulings cache", colorize),
		renderStatusLine("Store", statusInfo, fmt.Sprintf("%s (%s)", status.Store, status.Path), colorize),
	}
	if !status.Cached {
		lines = append(lines, renderStatusLine("Records", statusWarn, "nothing cached yet; run `folio refresh`", colorize))
		return lines
	}
	lines = append(lines, renderStatusLine("Records", statusOK, fmt.Sprintf("%d", status.Records), colorize))
	expires := status.ExpiresAt.Local().Format(timestampLayout)
	if status.Expired {
		lines = append(lines, renderStatusLine("Expires", statusWarn, "expired "+expires, colorize))
	} else {
		lines = append(lines, renderStatusLine("Expires", statusOK, expires, colorize))
	}
	if status.SavedAt != nil {
		lines = append(lines, renderStatusLine("Saved", statusInfo, status.SavedAt.Local().Format(timestampLayout), colorize))
	}
	if status.SourceURL != "" {
		lines = append(lines, renderStatusLine("Source", statusInfo, status.SourceURL, colorize))
	}
	return lines
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached rulings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.rulingsCache()
			if err != nil {
				return err
			}
			defer ctx.close()

			if err := cache.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared rulings cache at %s\n", cache.StorePath())
			return nil
		},
	}
}

func newCacheExportCommand(ctx *commandContext) *cobra.Command {
	var raw bool
	var format string

	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Write the cached rulings to a file",
		Long: `Write the cached rulings to a JSON or YAML file. With --raw the
backing store file is copied as-is instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve export path: %w", err)
			}
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported export format %q (use json or yaml)", format)
			}
			cache, err := ctx.rulingsCache()
			if err != nil {
				return err
			}
			defer ctx.close()

			snap, err := cache.Stored(cmd.Context())
			if err != nil {
				if errors.Is(err, rulings.ErrNoCache) {
					return errors.New("nothing cached yet; run `folio refresh` first")
				}
				return err
			}

			if raw {
				if err := fileutil.CopyFile(cache.StorePath(), target); err != nil {
					return fmt.Errorf("copy cache file: %w", err)
				}
			} else {
				data, err := encodeExport(format, cacheExport{
					SourceURL:  snap.SourceURL,
					ExpiresAt:  snap.ExpiresAt.UTC(),
					ExportedAt: time.Now().UTC(),
					Records:    snap.Records,
				})
				if err != nil {
					return fmt.Errorf("encode export: %w", err)
				}
				if err := fileutil.WriteFileAtomic(target, data, 0o644); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rulings to %s\n", len(snap.Records), target)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Copy the backing store file verbatim")
	cmd.Flags().StringVar(&format, "format", "json", "Export format: json or yaml")
	return cmd
}

func encodeExport(format string, export cacheExport) ([]byte, error) {
	if format == "yaml" {
		return yaml.Marshal(export)
	}
	return json.MarshalIndent(export, "", "  ")
}
