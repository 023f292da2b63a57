// Package filter describes card searches and tests rulings against them.
package filter

import (
	"errors"
	"strings"

	"folio/internal/card"
	"folio/internal/textutil"
)

// ErrExclusiveColorFlags is returned when multicolour and colourless are
// both requested.
var ErrExclusiveColorFlags = errors.New("multicolor and colorless are mutually exclusive")

// Filter is a card search. Zero-valued criteria are not applied.
type Filter struct {
	Name            string
	RulesText       string
	Colors          card.ColorSet
	Types           card.TypeSet
	SetAbbreviation string
	// Where is an optional CEL predicate applied after the other criteria.
	// It is not part of the external query.
	Where *Expr

	multicolor bool
	colorless  bool
}

// Multicolor reports whether the filter requires more than one colour.
func (f *Filter) Multicolor() bool { return f.multicolor }

// Colorless reports whether the filter requires no colours.
func (f *Filter) Colorless() bool { return f.colorless }

// SetMulticolor sets the multicolour flag. Enabling it while the colourless
// flag is set fails and leaves the filter unchanged.
func (f *Filter) SetMulticolor(value bool) error {
	if value && f.colorless {
		return ErrExclusiveColorFlags
	}
	f.multicolor = value
	return nil
}

// SetColorless sets the colourless flag. Enabling it while the multicolour
// flag is set fails and leaves the filter unchanged.
func (f *Filter) SetColorless(value bool) error {
	if value && f.multicolor {
		return ErrExclusiveColorFlags
	}
	f.colorless = value
	return nil
}

// SetColor adds or removes a single colour.
func (f *Filter) SetColor(color card.ColorSet, on bool) {
	if on {
		f.Colors |= color
	} else {
		f.Colors &^= color
	}
}

// Matches reports whether r satisfies every populated criterion. Requested
// colours must all be present on r; requested types must all be present on
// r.
func (f *Filter) Matches(r card.Ruling) bool {
	if f == nil {
		return true
	}
	if f.Name != "" && !textutil.ContainsFold(r.Name, f.Name) {
		return false
	}
	if f.RulesText != "" && !textutil.AnyContainsFold(r.RulesText, f.RulesText) {
		return false
	}
	colors := r.Colors()
	if f.Colors != card.Colorless && !colors.Has(f.Colors) {
		return false
	}
	if f.colorless && colors != card.Colorless {
		return false
	}
	if f.multicolor && !colors.IsMulticolor() {
		return false
	}
	if f.Types != 0 && !r.Types.Has(f.Types) {
		return false
	}
	if f.Where != nil && !f.Where.Match(r) {
		return false
	}
	return true
}

// Apply returns the rulings matching f, preserving order.
func (f *Filter) Apply(records []card.Ruling) []card.Ruling {
	matches := make([]card.Ruling, 0)
	for _, r := range records {
		if f.Matches(r) {
			matches = append(matches, r)
		}
	}
	return matches
}

// IsEmpty reports whether the filter has no criteria.
func (f *Filter) IsEmpty() bool {
	return strings.TrimSpace(f.Name) == "" &&
		strings.TrimSpace(f.RulesText) == "" &&
		f.Colors == card.Colorless &&
		f.Types == 0 &&
		f.SetAbbreviation == "" &&
		f.Where == nil &&
		!f.multicolor && !f.colorless
}
