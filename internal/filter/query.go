package filter

import (
	"strings"

	"folio/internal/card"
)

// BuildExternalQuery renders f in the magiccards.info search grammar. The
// result is deterministic and has no side effects; callers place it in the
// q parameter of a search URL.
func (f *Filter) BuildExternalQuery() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(f.Name, " ", "+"))

	if f.RulesText != "" {
		b.WriteString(`+o:"`)
		b.WriteString(f.RulesText)
		b.WriteString(`"`)
	}

	if f.Types != 0 {
		b.WriteString(`+t:"`)
		b.WriteString(f.Types.String())
		b.WriteString(`"`)
	}

	if f.Colors != card.Colorless || f.multicolor || f.colorless {
		b.WriteString("+c!")
		if f.colorless {
			b.WriteByte('c')
		}
		if f.multicolor {
			b.WriteByte('m')
		}
		for _, color := range card.AllColors {
			if f.Colors&color != 0 {
				b.WriteString(strings.ToLower(color.Letter()))
			}
		}
	}

	if f.SetAbbreviation != "" {
		b.WriteString("+e:")
		b.WriteString(f.SetAbbreviation)
	}
	return b.String()
}
