package card

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
)

// ColorSet is a set of the five colours. The zero value is colourless.
type ColorSet uint8

const (
	White ColorSet = 1 << iota
	Blue
	Black
	Red
	Green
)

// Colorless is the empty colour set.
const Colorless ColorSet = 0

// AllColors lists the colours in WUBRG order.
var AllColors = []ColorSet{White, Blue, Black, Red, Green}

func colorForLetter(ch byte) (ColorSet, bool) {
	switch ch {
	case 'W', 'w':
		return White, true
	case 'U', 'u':
		return Blue, true
	case 'B', 'b':
		return Black, true
	case 'R', 'r':
		return Red, true
	case 'G', 'g':
		return Green, true
	default:
		return 0, false
	}
}

// Letter returns the single-letter symbol of one colour, or "" for sets.
func (c ColorSet) Letter() string {
	switch c {
	case White:
		return "W"
	case Blue:
		return "U"
	case Black:
		return "B"
	case Red:
		return "R"
	case Green:
		return "G"
	default:
		return ""
	}
}

// Has reports whether every colour in other is also in c.
func (c ColorSet) Has(other ColorSet) bool { return c&other == other }

// Count returns the number of colours in the set.
func (c ColorSet) Count() int { return bits.OnesCount8(uint8(c)) }

// IsMulticolor reports whether more than one colour is present.
func (c ColorSet) IsMulticolor() bool { return c.Count() > 1 }

// Letters returns the member symbols in WUBRG order.
func (c ColorSet) Letters() []string {
	out := make([]string, 0, c.Count())
	for _, color := range AllColors {
		if c&color != 0 {
			out = append(out, color.Letter())
		}
	}
	return out
}

func (c ColorSet) String() string {
	if c == Colorless {
		return "C"
	}
	return strings.Join(c.Letters(), "")
}

// ParseColorSet parses a compact colour list such as "wg" or "R,G".
func ParseColorSet(value string) (ColorSet, error) {
	var set ColorSet
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch == ',' || ch == ' ' {
			continue
		}
		color, ok := colorForLetter(ch)
		if !ok {
			return 0, fmt.Errorf("unknown colour %q", ch)
		}
		set |= color
	}
	return set, nil
}

func (c ColorSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Letters())
}

func (c *ColorSet) UnmarshalJSON(data []byte) error {
	var letters []string
	if err := json.Unmarshal(data, &letters); err != nil {
		return err
	}
	set, err := ParseColorSet(strings.Join(letters, ""))
	if err != nil {
		return err
	}
	*c = set
	return nil
}
