package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// foldCase returns the Unicode case-folded form of s.
// A Caser is stateful, so one is built per call.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// tokenize splits text into case-folded words of letters and digits.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })
	for i, f := range fields {
		fields[i] = foldCase(f)
	}
	return fields
}

// wordCount returns the number of tokens in text.
func wordCount(text string) int {
	return len(strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) }))
}

// uniqueTerms returns tokens of at least minLen runes with duplicates removed,
// keeping first-occurrence order.
func uniqueTerms(words []string, minLen int) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < minLen {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// wordSpan is a word of a text with its byte offsets.
type wordSpan struct {
	Start, End int
	Word       string
}

// wordSpans returns the case-folded words of text with their byte offsets.
func wordSpans(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, wordSpan{Start: start, End: i, Word: foldCase(text[start:i])})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, wordSpan{Start: start, End: len(text), Word: foldCase(text[start:])})
	}
	return spans
}
