package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/imagegrab"
)

type imageOutput struct {
	Query string `json:"query"`
	URL   string `json:"url"`
}

func newImageCommand(ctx *commandContext) *cobra.Command {
	var ff filterFlags

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Find a card scan on the configured image search",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.build()
			if err != nil {
				return err
			}
			if f.IsEmpty() {
				return errors.New("at least one search criterion is required")
			}
			grabber, err := ctx.imageGrabber()
			if err != nil {
				return err
			}
			defer ctx.close()

			done := make(chan imagegrab.Result, 1)
			if !grabber.Grab(cmd.Context(), f, func(res imagegrab.Result) { done <- res }) {
				return errors.New("an image lookup is already in progress")
			}
			var res imagegrab.Result
			select {
			case res = <-done:
			case <-cmd.Context().Done():
				grabber.Cancel()
				grabber.Wait()
				return cmd.Context().Err()
			}
			if res.Cancelled {
				return context.Canceled
			}
			if res.Err != nil {
				return res.Err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, imageOutput{Query: res.Query, URL: res.URL})
			}
			out := cmd.OutOrStdout()
			if res.URL == "" {
				fmt.Fprintf(out, "No image found for %s\n", res.Query)
				return nil
			}
			fmt.Fprintln(out, res.URL)
			return nil
		},
	}

	ff.register(cmd)
	return cmd
}
