package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type refreshOutput struct {
	Records   int       `json:"records"`
	ExpiresAt time.Time `json:"expires_at"`
	SourceURL string    `json:"source_url"`
	Store     string    `json:"store"`
	Path      string    `json:"path"`
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var ifExpired bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Download the rulings corpus and rebuild the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.rulingsCache()
			if err != nil {
				return err
			}
			defer ctx.close()

			if err := cache.LoadOrRefresh(cmd.Context(), !ifExpired); err != nil {
				return fmt.Errorf("refresh rulings: %w", err)
			}

			st := cache.Status()
			if ctx.jsonOutput() {
				return writeJSON(cmd, refreshOutput{
					Records:   st.Records,
					ExpiresAt: st.ExpiresAt,
					SourceURL: st.SourceURL,
					Store:     st.StoreKind,
					Path:      st.StorePath,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cached %d rulings from %s\n", st.Records, st.SourceURL)
			fmt.Fprintf(out, "Expires %s\n", st.ExpiresAt.Local().Format(timestampLayout))
			return nil
		},
	}

	cmd.Flags().BoolVar(&ifExpired, "if-expired", false, "Only download when the cache is missing or expired")
	return cmd
}
