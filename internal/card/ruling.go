package card

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TypeSet is a set of card types.
type TypeSet uint8

const (
	Creature TypeSet = 1 << iota
	Land
	Artifact
	Enchantment
	Sorcery
	Instant
	Planeswalker
	Tribal
)

// AllTypes lists the type vocabulary in declaration order.
var AllTypes = []TypeSet{Creature, Land, Artifact, Enchantment, Sorcery, Instant, Planeswalker, Tribal}

var typeNames = map[TypeSet]string{
	Creature:     "Creature",
	Land:         "Land",
	Artifact:     "Artifact",
	Enchantment:  "Enchantment",
	Sorcery:      "Sorcery",
	Instant:      "Instant",
	Planeswalker: "Planeswalker",
	Tribal:       "Tribal",
}

// ParseTypes matches a corpus type line against the vocabulary. Matching is
// case-sensitive and by substring, so "Artifact Creature - Golem" yields
// Artifact and Creature.
func ParseTypes(line string) TypeSet {
	var set TypeSet
	for _, t := range AllTypes {
		if strings.Contains(line, typeNames[t]) {
			set |= t
		}
	}
	return set
}

// ParseTypeName resolves one type name, ignoring case.
func ParseTypeName(name string) (TypeSet, error) {
	trimmed := strings.TrimSpace(name)
	for _, t := range AllTypes {
		if strings.EqualFold(typeNames[t], trimmed) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown card type %q", name)
}

// Has reports whether every type in other is also in t.
func (t TypeSet) Has(other TypeSet) bool { return t&other == other }

// Names returns member names in vocabulary order.
func (t TypeSet) Names() []string {
	out := make([]string, 0, len(AllTypes))
	for _, typ := range AllTypes {
		if t&typ != 0 {
			out = append(out, typeNames[typ])
		}
	}
	return out
}

func (t TypeSet) String() string { return strings.Join(t.Names(), " ") }

func (t TypeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Names())
}

// MarshalYAML renders the set as a list of names.
func (t TypeSet) MarshalYAML() (any, error) {
	return t.Names(), nil
}

func (t *TypeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set TypeSet
	for _, name := range names {
		typ, err := ParseTypeName(name)
		if err != nil {
			return err
		}
		set |= typ
	}
	*t = set
	return nil
}

// Ruling is one oracle record.
type Ruling struct {
	Name      string   `json:"name" yaml:"name"`
	Cost      Cost     `json:"cost" yaml:"cost"`
	Types     TypeSet  `json:"types" yaml:"types"`
	RulesText []string `json:"rules_text" yaml:"rules_text"`
}

// Colors returns the colour identity derived from the cost.
func (r Ruling) Colors() ColorSet { return r.Cost.Colors() }
