package textutil

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns the Unicode case-folded form of value for caseless comparison.
// A Caser carries state, so each call builds its own.
func Fold(value string) string {
	if value == "" {
		return ""
	}
	return cases.Fold().String(value)
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
// An empty needle always matches.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), Fold(needle))
}

// AnyContainsFold reports whether needle occurs in any of the lines.
func AnyContainsFold(lines []string, needle string) bool {
	if needle == "" {
		return true
	}
	folded := Fold(needle)
	for _, line := range lines {
		if strings.Contains(Fold(line), folded) {
			return true
		}
	}
	return false
}
