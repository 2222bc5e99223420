package match

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var (
	disallowed = regexp.MustCompile(`[^a-z0-9\s]`)
	wordSep    = regexp.MustCompile(`\s+`)
)

// Normalize lowercases s, drops every character that is not a lowercase ASCII
// letter, a digit or whitespace, and trims surrounding whitespace. Internal
// whitespace runs are kept. Trimming last keeps Normalize idempotent even
// when removed punctuation exposes edge whitespace ("simba !" -> "simba").
func Normalize(s string) string {
	return strings.TrimSpace(disallowed.ReplaceAllString(strings.ToLower(s), ""))
}

// Levenshtein returns the minimum number of single-character insertions,
// deletions and substitutions needed to turn a into b.
func Levenshtein(a, b string) int {
	return matchr.Levenshtein(a, b)
}

// Similarity returns 1 - Levenshtein(a, b) / max(len(a), len(b)), in [0, 1].
// Two empty strings are fully similar.
func Similarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(maxLen)
}

// words splits a normalised string on whitespace runs.
func words(s string) []string {
	return wordSep.Split(s, -1)
}
