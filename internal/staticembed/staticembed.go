// Package staticembed provides a dependency-free ragtypes.EmbeddingService:
// a deterministic, hash-based vectorizer with no model download and no
// network calls. The retrieval core itself ships no default embedder (an
// EmbeddingService is an external collaborator per the component
// contract); this package exists so cmd/ragctl and tests can exercise
// the pipeline end to end without wiring a real embedding model.
package staticembed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Dimensions is the fixed output vector length.
const Dimensions = 256

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

var stopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
	"the": true, "a": true, "an": true, "is": true, "are": true,
}

// Embedder generates embeddings by hashing tokens and character n-grams
// into fixed buckets and weighting by feature kind, then L2-normalizing.
// Deterministic and order-independent for retrieval tests.
type Embedder struct {
	mu     sync.RWMutex
	closed bool
}

// New builds a ready-to-use Embedder.
func New() *Embedder {
	return &Embedder{}
}

// Embed implements ragtypes.EmbeddingService.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("staticembed: embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, Dimensions), nil
	}
	return normalize(vectorize(trimmed)), nil
}

// EmbedBatch implements ragtypes.EmbeddingService.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("staticembed: embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions implements ragtypes.EmbeddingService.
func (e *Embedder) Dimensions() int { return Dimensions }

// Close marks the embedder unusable. Idempotent.
func (e *Embedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func vectorize(text string) []float32 {
	vec := make([]float32, Dimensions)

	for _, tok := range tokens(text) {
		if stopWords[tok] {
			continue
		}
		vec[bucket(tok)] += tokenWeight
	}

	normalized := stripToAlnum(text)
	for _, gram := range ngrams(normalized, ngramSize) {
		vec[bucket(gram)] += ngramWeight
	}

	return vec
}

func tokens(text string) []string {
	var out []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, part := range splitCodeCase(word) {
			if lower := strings.ToLower(part); lower != "" {
				out = append(out, lower)
			}
		}
	}
	return out
}

func splitCodeCase(token string) []string {
	if strings.Contains(token, "_") {
		var parts []string
		for _, p := range strings.Split(token, "_") {
			if p != "" {
				parts = append(parts, splitCamel(p)...)
			}
		}
		return parts
	}
	return splitCamel(token)
}

func splitCamel(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if cur.Len() > 0 {
					out = append(out, cur.String())
					cur.Reset()
				}
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func stripToAlnum(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ngrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	out := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		out = append(out, text[i:i+n])
	}
	return out
}

func bucket(s string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(Dimensions))
}

func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v * norm
	}
	return out
}
