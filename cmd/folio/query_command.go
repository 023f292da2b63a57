package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/card"
	"folio/internal/filter"
	"folio/internal/rulings"
)

type queryOutput struct {
	Count   int           `json:"count"`
	Records []card.Ruling `json:"records"`
	Warning string        `json:"warning,omitempty"`
}

func newQueryCommand(ctx *commandContext) *cobra.Command {
	var ff filterFlags
	var sortBy string
	var limit int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search the cached rulings",
		Long: `Search the cached rulings. The cache is loaded from disk, or
fetched from the corpus URL when it is missing or expired.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.build()
			if err != nil {
				return err
			}
			cache, err := ctx.rulingsCache()
			if err != nil {
				return err
			}
			defer ctx.close()

			res, err := runQuery(cmd.Context(), cache, f)
			if err != nil {
				return err
			}

			records := res.Records
			if err := sortRulings(records, sortBy); err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			warning := ""
			if res.Err != nil {
				warning = fmt.Sprintf("refresh failed, showing cached results: %v", res.Err)
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, queryOutput{Count: len(records), Records: records, Warning: warning})
			}
			out := cmd.OutOrStdout()
			if warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: "+warning)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No matching cards")
				return nil
			}
			fmt.Fprintln(out, renderRulings(records))
			fmt.Fprintf(out, "%d card(s)\n", len(records))
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVar(&ff.where, "where", "", `CEL predicate over name, cost, cmc, colors, types, rules (e.g. 'cmc <= 2 && "Instant" in types')`)
	cmd.Flags().StringVar(&sortBy, "sort", "none", "Sort order: none, name, or cost")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many cards (0 = all)")
	return cmd
}

// runQuery waits for the cache to deliver. A warm cache completes before
// Query returns; a cold one completes on the refresh goroutine.
func runQuery(ctx context.Context, cache *rulings.Cache, f *filter.Filter) (rulings.QueryResult, error) {
	done := make(chan rulings.QueryResult, 1)
	if !cache.Query(ctx, f, func(res rulings.QueryResult) { done <- res }) {
		return rulings.QueryResult{}, errors.New("a rulings refresh is already in progress")
	}
	select {
	case res := <-done:
		if res.Cancelled {
			return res, context.Canceled
		}
		if res.Err != nil && cache.Status().Records == 0 {
			return res, res.Err
		}
		return res, nil
	case <-ctx.Done():
		cache.Cancel()
		return rulings.QueryResult{}, ctx.Err()
	}
}

func sortRulings(records []card.Ruling, sortBy string) error {
	switch strings.ToLower(strings.TrimSpace(sortBy)) {
	case "", "none":
	case "name":
		slices.SortStableFunc(records, func(a, b card.Ruling) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	case "cost":
		slices.SortStableFunc(records, func(a, b card.Ruling) int {
			return a.Cost.Compare(b.Cost)
		})
	default:
		return fmt.Errorf("unknown sort order %q (use none, name, or cost)", sortBy)
	}
	return nil
}

func renderRulings(records []card.Ruling) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Name,
			r.Cost.Raw(),
			fmt.Sprintf("%d", r.Cost.Total()),
			r.Types.String(),
			strings.Join(r.RulesText, "\n"),
		})
	}
	return renderTable(
		[]string{"Name", "Cost", "CMC", "Types", "Rules"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		[]int{0, 0, 0, 0, 60},
	)
}
