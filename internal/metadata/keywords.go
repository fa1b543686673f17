package metadata

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	// minKeywordLen and maxKeywordLen bound accepted keyword length.
	// Tokens of two characters or fewer are noise; tokens of fifteen or
	// more are almost always concatenation artifacts from broken text
	// layers.
	minKeywordLen = 3
	maxKeywordLen = 14
)

// noisePattern matches version and revision markers that carry no
// meaning as keywords: v2, ver10, version3, rev4, draft2, copy3, final2.
var noisePattern = regexp.MustCompile(`^(?:v(?:er(?:sion)?)?\d+|rev\d+|draft\d*|copy\d*|final\d*|p(?:ag(?:e|ina))?\d+)$`)

// placeholderWords are watermark and export-artifact tokens observed in
// real uploads that the stop-word lists do not cover.
var placeholderWords = map[string]struct{}{
	"lorem":      {},
	"ipsum":      {},
	"untitled":   {},
	"smallpdf":   {},
	"ilovepdf":   {},
	"camscanner": {},
	"gicaju":     {},
}

// FilterCandidates applies the keyword acceptance rules to a list of
// candidate tokens, preserving order: stop-words and document jargon are
// dropped, as are tokens shorter than three or longer than fourteen
// characters, multi-word phrases, and version/placeholder noise.
func FilterCandidates(candidates []string) []string {
	out := make([]string, 0, len(candidates))

	for _, c := range candidates {
		w := strings.ToLower(strings.TrimSpace(c))
		if w == "" {
			continue
		}

		if strings.ContainsFunc(w, unicode.IsSpace) {
			continue
		}

		if len(w) < minKeywordLen || len(w) > maxKeywordLen {
			continue
		}

		if isStopWord(w) {
			continue
		}

		if _, ok := placeholderWords[w]; ok {
			continue
		}

		if noisePattern.MatchString(w) {
			continue
		}

		out = append(out, w)
	}

	return out
}

// ExtractKeywords tokenizes text, filters candidates, and returns the
// top max keywords ranked by frequency. Ties break lexicographically so
// identical input always yields an identical list.
func ExtractKeywords(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	tokens := tokenize(text)
	accepted := FilterCandidates(tokens)

	counts := make(map[string]int, len(accepted))
	for _, w := range accepted {
		counts[w]++
	}

	ranked := make([]string, 0, len(counts))
	for w := range counts {
		ranked = append(ranked, w)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}

		return ranked[i] < ranked[j]
	})

	if len(ranked) > max {
		ranked = ranked[:max]
	}

	return ranked
}

// MeaningfulWordCount counts tokens longer than two characters. Used to
// decide whether a document's text layer is real or the file is a scan
// needing OCR.
func MeaningfulWordCount(text string) int {
	count := 0

	for _, tok := range tokenize(text) {
		if len(tok) >= minKeywordLen {
			count++
		}
	}

	return count
}

// tokenize lowercases and splits text on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
