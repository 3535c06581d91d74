package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// injectionPatterns is the fixed, readonly table of known prompt/query
// injection markers sanitize_query strips before a query reaches any
// search backend. Go's regexp.Regexp carries no lastIndex-style mutable
// match cursor the way a JavaScript RegExp with the "g" flag would, so
// sharing these compiled patterns across calls (unlike the cross-call
// state leak spec.md §9 flags in the source) is safe without
// re-instantiation.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)system\s*:\s*`),
	regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe)\b[^>]*>`),
	regexp.MustCompile(`(?i)\[\s*INST\s*\]`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+`),
}

// ValidateRetrievalInput checks the precondition retrieve and
// retrieve_iterative require before doing any work: a non-blank query and
// a syntactically valid collection name.
func ValidateRetrievalInput(query, collection string) bool {
	return strings.TrimSpace(query) != "" && ragtypes.ValidCollectionName(collection)
}

// SanitizeQuery strips known injection patterns and control characters,
// collapses whitespace, and truncates to maxLength. It reports whether
// any injection pattern matched, per spec.md §4.8 step 1's "if patterns
// matched, record and continue with the sanitized string".
func SanitizeQuery(query string, maxLength int) (sanitized string, patternsMatched bool) {
	cleaned := query
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(cleaned) {
			patternsMatched = true
			cleaned = pattern.ReplaceAllString(cleaned, " ")
		}
	}

	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, cleaned)

	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if maxLength > 0 && len(cleaned) > maxLength {
		cleaned = cleaned[:maxLength]
	}

	return cleaned, patternsMatched
}
