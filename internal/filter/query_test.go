package filter

import (
	"testing"

	"folio/internal/card"
)

func TestBuildExternalQuery(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Filter
		want  string
	}{
		{
			name:  "name only",
			build: func() *Filter { return &Filter{Name: "Llanowar Elves"} },
			want:  "Llanowar+Elves",
		},
		{
			name: "rules text and types",
			build: func() *Filter {
				return &Filter{Name: "Golem", RulesText: "trample", Types: card.Artifact | card.Creature}
			},
			want: `Golem+o:"trample"+t:"Creature Artifact"`,
		},
		{
			name:  "colours in fixed order",
			build: func() *Filter { return &Filter{Name: "x", Colors: card.Green | card.White | card.Black} },
			want:  "x+c!wbg",
		},
		{
			name: "multicolour before colours",
			build: func() *Filter {
				f := &Filter{Colors: card.Red | card.Blue}
				_ = f.SetMulticolor(true)
				return f
			},
			want: "+c!mur",
		},
		{
			name: "colourless",
			build: func() *Filter {
				f := &Filter{Name: "Sol Ring"}
				_ = f.SetColorless(true)
				return f
			},
			want: "Sol+Ring+c!c",
		},
		{
			name:  "set abbreviation last",
			build: func() *Filter { return &Filter{Name: "Shock", Colors: card.Red, SetAbbreviation: "m19"} },
			want:  "Shock+c!r+e:m19",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := tc.build()
			if got := f.BuildExternalQuery(); got != tc.want {
				t.Fatalf("BuildExternalQuery() = %q, want %q", got, tc.want)
			}
			if again := f.BuildExternalQuery(); again != tc.want {
				t.Fatalf("rendering is not deterministic: %q", again)
			}
		})
	}
}
