package keyword

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// trimSpace trims and collapses whitespace without changing case.
func trimSpace(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// Clamp truncates word to at most max runes and reports how many were cut.
// max <= 0 disables clamping.
func Clamp(word string, max int) (string, int) {
	if max <= 0 {
		return word, 0
	}
	n := utf8.RuneCountInString(word)
	if n <= max {
		return word, 0
	}
	r := []rune(word)
	return string(r[:max]), n - max
}

// ClampWeight pins w to [MinWeight, MaxWeight].
func ClampWeight(w int) int {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

// DedupeKey is polarity plus the lowercased stored word.
func DedupeKey(p Polarity, storedWord string) string {
	return string(p) + ":" + Normalize(storedWord)
}
