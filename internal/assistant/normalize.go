package assistant

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// normalize lower-cases text and collapses whitespace so that taxonomy names and
// free-text queries compare by plain substring containment.
// A Caser is stateful, so one is created per call.
func normalize(s string) string {
	lowered := cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(lowered), " ")
}

// containsTerm reports whether the normalized haystack contains the normalized term.
// Empty terms never match.
func containsTerm(haystack, term string) bool {
	term = normalize(term)
	return term != "" && strings.Contains(haystack, term)
}
