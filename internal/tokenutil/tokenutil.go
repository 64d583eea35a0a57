// Package tokenutil provides heuristic token estimation used wherever the
// governor needs a count without a provider round-trip.
package tokenutil

import "strings"

// Estimate returns a word-based token estimate for content.
// Whitespace-split word count times 1.33 (average tokens per English word),
// floored by len/4 so code and CJK text are not undercounted.
func Estimate(content string) int {
	if content == "" {
		return 0
	}
	words := len(strings.Fields(content))
	byWords := int(float64(words) * 1.33)
	byChars := len(content) / 4
	if byWords > byChars {
		return byWords
	}
	return byChars
}

// EstimateAll sums Estimate over the given texts.
func EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}
