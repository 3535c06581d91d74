// Package ctxmgr implements the dynamic context manager: token
// budgeting against query complexity, score-ordered selection with a
// diversity post-filter, overflow compression, and final formatting
// into the text handed to a language model.
package ctxmgr

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

const charsPerToken = 4

func tokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / float64(charsPerToken)))
}

// BudgetReport summarizes how the token budget was spent.
type BudgetReport struct {
	MaxTokens       int
	Reserve         int
	Available       int
	Target          int
	UsedTokens      int
	TruncatedCount  int
	Complexity      ragtypes.ComplexityClass
	CompressionRatio float64 // 1.0 when no compression was needed
}

// Config tunes the manager's defaults.
type Config struct {
	MaxTokens       int
	ReserveTokens   int // default 2000
	MaxChunks       int
}

// DefaultConfig returns spec.md §4.7's stated defaults.
func DefaultConfig() Config {
	return Config{MaxTokens: 8000, ReserveTokens: 2000, MaxChunks: 10}
}

// Manager plans context windows per spec.md §4.7.
type Manager struct {
	cfg Config
}

// New builds a Manager with the given configuration.
func New(cfg Config) *Manager {
	if cfg.ReserveTokens == 0 {
		cfg.ReserveTokens = 2000
	}
	if cfg.MaxChunks == 0 {
		cfg.MaxChunks = 10
	}
	return &Manager{cfg: cfg}
}

var comparisonWords = regexp.MustCompile(`(?i)\b(vs\.?|versus|compare[ds]?|difference between|better than|worse than)\b`)
var multiClauseMarkers = regexp.MustCompile(`(?i)[,;]|\b(and|but|however|although|while)\b`)

// ClassifyComplexity buckets a query into {simple, moderate, complex} via
// word count, comparison words, and multi-clause markers.
func ClassifyComplexity(query string) ragtypes.ComplexityClass {
	words := strings.Fields(query)
	wordCount := len(words)
	hasComparison := comparisonWords.MatchString(query)
	hasMultiClause := multiClauseMarkers.MatchString(query)

	switch {
	case wordCount > 20 || (hasComparison && hasMultiClause):
		return ragtypes.ComplexityComplex
	case wordCount > 8 || hasComparison || hasMultiClause:
		return ragtypes.ComplexityModerate
	default:
		return ragtypes.ComplexitySimple
	}
}

func targetTokens(complexity ragtypes.ComplexityClass, available, totalDocTokens int) int {
	var byComplexity int
	switch complexity {
	case ragtypes.ComplexitySimple:
		byComplexity = 2000
	case ragtypes.ComplexityModerate:
		byComplexity = int(math.Min(4000, 0.8*float64(totalDocTokens)))
	default: // complex
		byComplexity = available
	}
	target := min3(available, totalDocTokens, byComplexity)
	if target < 500 {
		target = 500
	}
	return target
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Plan selects, diversity-filters, and formats candidateDocs (already
// sorted or not — Plan sorts by score descending itself) into a context
// window within the token budget. tokenCap <= 0 means no caller-supplied
// cap; the manager's own MaxTokens governs.
func (m *Manager) Plan(query string, candidateDocs []ragtypes.RerankedDoc, tokenCap int) ([]ragtypes.RerankedDoc, string, BudgetReport) {
	maxTokens := m.cfg.MaxTokens
	if tokenCap > 0 && tokenCap < maxTokens {
		maxTokens = tokenCap
	}
	available := maxTokens - m.cfg.ReserveTokens
	if available < 0 {
		available = 0
	}

	docs := make([]ragtypes.RerankedDoc, len(candidateDocs))
	copy(docs, candidateDocs)
	sortByScoreDesc(docs)

	totalDocTokens := 0
	for _, d := range docs {
		totalDocTokens += tokens(d.Content)
	}

	complexity := ClassifyComplexity(query)
	target := targetTokens(complexity, available, totalDocTokens)

	selected := make([]ragtypes.RerankedDoc, 0, len(docs))
	used := 0
	truncated := 0

	for _, d := range docs {
		if len(selected) >= m.cfg.MaxChunks {
			break
		}
		remaining := target - used
		if remaining <= 0 {
			break
		}
		docTokens := tokens(d.Content)
		if docTokens <= remaining {
			selected = append(selected, d)
			used += docTokens
			continue
		}
		if len(selected) == 0 && remaining > 100 {
			d.Content = truncateToTokens(d.Content, remaining)
			selected = append(selected, d)
			used += tokens(d.Content)
			truncated++
		}
		break
	}

	selected = diversityFilter(selected)

	formatted := format(selected)
	report := BudgetReport{
		MaxTokens:        maxTokens,
		Reserve:          m.cfg.ReserveTokens,
		Available:        available,
		Target:           target,
		UsedTokens:       used,
		TruncatedCount:   truncated,
		Complexity:       complexity,
		CompressionRatio: 1.0,
	}
	return selected, formatted, report
}

func sortByScoreDesc(docs []ragtypes.RerankedDoc) {
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0 && docs[j].RerankScore > docs[j-1].RerankScore; j-- {
			docs[j], docs[j-1] = docs[j-1], docs[j]
		}
	}
}

func truncateToTokens(content string, budget int) string {
	maxChars := budget * charsPerToken
	if maxChars >= len(content) {
		return content
	}
	return content[:maxChars]
}

// fingerprint returns the content fingerprint spec.md §4.7 uses for
// near-duplicate detection: lowercased, whitespace-collapsed, first 50
// chars plus the total length.
func fingerprint(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	prefix := normalized
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	return fmt.Sprintf("%s|%d", prefix, len(normalized))
}

func tokenSet(content string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(content))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// diversityFilter drops docs after the first that near-duplicate a prior
// selection, per spec.md §4.7's fingerprint/Jaccard rules.
func diversityFilter(docs []ragtypes.RerankedDoc) []ragtypes.RerankedDoc {
	if len(docs) <= 1 {
		return docs
	}
	out := make([]ragtypes.RerankedDoc, 0, len(docs))
	fingerprints := make([]string, 0, len(docs))
	tokenSets := make([]map[string]struct{}, 0, len(docs))

	for _, d := range docs {
		fp := fingerprint(d.Content)
		ts := tokenSet(d.Content)

		duplicate := false
		for i, priorFP := range fingerprints {
			if priorFP == fp {
				duplicate = true
				break
			}
			if jaccard(ts, tokenSets[i]) > 0.8 {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		out = append(out, d)
		fingerprints = append(fingerprints, fp)
		tokenSets = append(tokenSets, ts)
	}
	return out
}

var fillerPhrases = []string{
	"it is important to note that",
	"it should be noted that",
	"basically",
	"essentially",
	"in other words",
}

var sentenceSplit = regexp.MustCompile(`(?s)([^.!?]*[.!?]+)\s*`)

// Compress shrinks content to fit a tighter token budget: collapse
// whitespace, truncate over-long sentences with an ellipsis, strip known
// filler phrases, then hard-truncate at a sentence boundary if still
// over budget. Returns the compressed text and the compression ratio
// (final_tokens / original_tokens).
func Compress(content string, targetTokens int) (string, float64) {
	originalTokens := tokens(content)
	if originalTokens == 0 {
		return content, 1.0
	}

	collapsed := strings.Join(strings.Fields(content), " ")

	sentences := splitSentences(collapsed)
	for i, s := range sentences {
		words := strings.Fields(s)
		if len(words) > 100 {
			sentences[i] = strings.Join(words[:100], " ") + "..."
		}
	}
	result := strings.Join(sentences, " ")

	for _, phrase := range fillerPhrases {
		result = replaceCaseInsensitive(result, phrase, "")
	}
	result = strings.Join(strings.Fields(result), " ")

	if tokens(result) > targetTokens {
		result = hardTruncateAtSentence(result, targetTokens)
	}

	finalTokens := tokens(result)
	ratio := float64(finalTokens) / float64(originalTokens)
	return result, ratio
}

func splitSentences(text string) []string {
	matches := sentenceSplit.FindAllString(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m))
	}
	return out
}

func hardTruncateAtSentence(text string, targetTokens int) string {
	maxChars := targetTokens * charsPerToken
	if maxChars >= len(text) {
		return text
	}
	truncated := text[:maxChars]
	if idx := strings.LastIndexAny(truncated, ".!?"); idx > 0 {
		return truncated[:idx+1]
	}
	return truncated
}

func replaceCaseInsensitive(text, phrase, replacement string) string {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(phrase))
	return re.ReplaceAllString(text, replacement)
}

// format renders selected docs per spec.md §4.7's formatting rule:
// "[Source k] (meta.source) [Relevance: p%]\nTitle: meta.title\n{content}",
// joined by blank lines.
func format(docs []ragtypes.RerankedDoc) string {
	parts := make([]string, 0, len(docs))
	for i, d := range docs {
		relevancePct := int(math.Round(d.RerankScore * 100))
		source := d.Metadata.GetString(ragtypes.MetaSource)
		title := d.Metadata.GetString(ragtypes.MetaTitle)
		parts = append(parts, fmt.Sprintf("[Source %d] (%s) [Relevance: %d%%]\nTitle: %s\n%s", i+1, source, relevancePct, title, d.Content))
	}
	return strings.Join(parts, "\n\n")
}
