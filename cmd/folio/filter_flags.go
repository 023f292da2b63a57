package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/card"
	"folio/internal/filter"
)

// filterFlags collects the search criteria shared by query and image.
type filterFlags struct {
	name       string
	rules      string
	colors     string
	types      []string
	multicolor bool
	colorless  bool
	set        string
	where      string
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&ff.name, "name", "n", "", "Card name substring (case-insensitive)")
	flags.StringVarP(&ff.rules, "rules", "r", "", "Rules text substring (case-insensitive)")
	flags.StringVar(&ff.colors, "colors", "", "Required colours, e.g. RG or w,u")
	flags.StringSliceVarP(&ff.types, "type", "t", nil, "Required card type (repeatable)")
	flags.BoolVar(&ff.multicolor, "multicolor", false, "Only cards with more than one colour")
	flags.BoolVar(&ff.colorless, "colorless", false, "Only colourless cards")
	flags.StringVar(&ff.set, "set", "", "Set abbreviation for image searches")
}

func (ff *filterFlags) build() (*filter.Filter, error) {
	f := &filter.Filter{
		Name:            strings.TrimSpace(ff.name),
		RulesText:       strings.TrimSpace(ff.rules),
		SetAbbreviation: strings.TrimSpace(ff.set),
	}

	colors, err := card.ParseColorSet(ff.colors)
	if err != nil {
		return nil, fmt.Errorf("--colors: %w", err)
	}
	f.Colors = colors

	for _, name := range ff.types {
		for _, part := range strings.Fields(name) {
			t, err := card.ParseTypeName(part)
			if err != nil {
				return nil, fmt.Errorf("--type: %w", err)
			}
			f.Types |= t
		}
	}

	if strings.TrimSpace(ff.where) != "" {
		expr, err := filter.CompileExpr(ff.where)
		if err != nil {
			return nil, fmt.Errorf("--where: %w", err)
		}
		f.Where = expr
	}

	if err := f.SetMulticolor(ff.multicolor); err != nil {
		return nil, err
	}
	if err := f.SetColorless(ff.colorless); err != nil {
		return nil, err
	}
	return f, nil
}
