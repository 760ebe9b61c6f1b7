package hl

import "strings"

// Match is a located span of a needle within content. Offsets are byte
// positions. When Normalized is true the offsets refer to the
// whitespace-normalized form of the content rather than the raw text, and
// callers must treat the match as lower-confidence.
type Match struct {
	Start      int
	End        int
	Normalized bool
}

// Locate finds the occurrence-th verbatim match of needle in content
// (0-based). If there is no verbatim match at all, it retries with every run
// of whitespace in both strings collapsed to a single space, so highlights
// survive formatting-only edits like re-wrapped paragraphs. Returns false
// when the needle does not occur or the occurrence index is out of range.
func Locate(content, needle string, occurrence int) (Match, bool) {
	if needle == "" || occurrence < 0 {
		return Match{}, false
	}

	starts := findAll(content, needle)
	if len(starts) > 0 {
		if occurrence >= len(starts) {
			return Match{}, false
		}
		start := starts[occurrence]
		return Match{Start: start, End: start + len(needle)}, true
	}

	normContent := NormalizeWhitespace(content)
	normNeedle := NormalizeWhitespace(needle)
	if normNeedle == "" {
		return Match{}, false
	}
	starts = findAll(normContent, normNeedle)
	if occurrence >= len(starts) {
		return Match{}, false
	}
	start := starts[occurrence]
	return Match{Start: start, End: start + len(normNeedle), Normalized: true}, true
}

// findAll returns every start index where needle occurs in s, left to right.
// Occurrences may overlap.
func findAll(s, needle string) []int {
	var starts []int
	from := 0
	for {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			return starts
		}
		starts = append(starts, from+i)
		from += i + 1
	}
}

// NormalizeWhitespace collapses each whitespace run (including newlines) to a
// single space and trims both ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
