package card

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCost reports a cost string outside the corpus cost grammar.
var ErrInvalidCost = errors.New("invalid cost")

// Cost is a parsed resource cost. The zero value is the empty cost.
type Cost struct {
	raw    string
	total  int
	colors ColorSet
}

// ParseCost validates text against the cost grammar and derives the converted
// total and colour flags. It never panics; malformed input returns an error
// wrapping ErrInvalidCost.
func ParseCost(text string) (Cost, error) {
	total := 0
	generic := 0
	inDigits := true
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch >= '0' && ch <= '9' {
			if !inDigits {
				return Cost{}, fmt.Errorf("%w: digit after colour symbol in %q", ErrInvalidCost, text)
			}
			generic++
			continue
		}
		if _, ok := colorForLetter(ch); !ok {
			return Cost{}, fmt.Errorf("%w: unexpected symbol %q in %q", ErrInvalidCost, ch, text)
		}
		if inDigits {
			flushed, err := flushGeneric(text[:generic])
			if err != nil {
				return Cost{}, err
			}
			total += flushed
			inDigits = false
		}
		total++
	}
	if inDigits {
		flushed, err := flushGeneric(text[:generic])
		if err != nil {
			return Cost{}, err
		}
		total += flushed
	}
	return Cost{raw: text, total: total, colors: ParseColors(text)}, nil
}

func flushGeneric(digits string) (int, error) {
	if digits == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: generic cost %q: %v", ErrInvalidCost, digits, err)
	}
	return n, nil
}

// MustParseCost is ParseCost for literals known to be valid.
func MustParseCost(text string) Cost {
	c, err := ParseCost(text)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseColors returns every colour whose letter appears anywhere in text,
// regardless of position or case.
func ParseColors(text string) ColorSet {
	var set ColorSet
	for i := 0; i < len(text); i++ {
		if c, ok := colorForLetter(text[i]); ok {
			set |= c
		}
	}
	return set
}

// Raw returns the cost exactly as it appeared in the corpus.
func (c Cost) Raw() string { return c.raw }

// Total returns the converted cost.
func (c Cost) Total() int { return c.total }

// Colors returns the colours present in the cost.
func (c Cost) Colors() ColorSet { return c.colors }

// IsZero reports whether the cost is empty.
func (c Cost) IsZero() bool { return c.raw == "" && c.total == 0 }

// Compare orders costs by converted total only.
func (c Cost) Compare(other Cost) int {
	switch {
	case c.total < other.total:
		return -1
	case c.total > other.total:
		return 1
	default:
		return 0
	}
}

func (c Cost) String() string { return c.raw }

// MarshalText persists the raw cost; derived fields are rebuilt on load.
func (c Cost) MarshalText() ([]byte, error) {
	return []byte(c.raw), nil
}

// UnmarshalText re-parses a persisted cost.
func (c *Cost) UnmarshalText(data []byte) error {
	parsed, err := ParseCost(strings.TrimSpace(string(data)))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
