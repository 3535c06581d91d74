// Package chunker splits source documents into retrievable chunks,
// walking the Markdown AST to detect headings, tables, and lists and
// attach them as chunk metadata.
package chunker

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
	"github.com/aman-cerp/ragcore/internal/tokenizer"
)

const (
	DefaultMaxChunkTokens = 512
	DefaultOverlapTokens  = 64
	tokensPerChar         = 4
)

// Options configures the splitter.
type Options struct {
	MaxChunkTokens int
	OverlapTokens  int
	// Contextualize prefixes each chunk's ContextualContent with a
	// lightweight heading/position summary when no language model
	// contextualizer is wired in by the pipeline.
	Contextualize bool
}

// DefaultOptions returns spec.md-aligned defaults, matching the
// teacher's DefaultMaxChunkTokens/DefaultOverlapTokens constants.
func DefaultOptions() Options {
	return Options{MaxChunkTokens: DefaultMaxChunkTokens, OverlapTokens: DefaultOverlapTokens, Contextualize: true}
}

// MarkdownSplitter splits Markdown (or plain text, treated as a single
// paragraph) documents into ragtypes.Chunk values.
type MarkdownSplitter struct {
	opts Options
	md   goldmark.Markdown
}

// NewMarkdownSplitter builds a splitter. A zero MaxChunkTokens or
// OverlapTokens takes its default value; Contextualize is used as given.
func NewMarkdownSplitter(opts Options) *MarkdownSplitter {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &MarkdownSplitter{
		opts: opts,
		md:   goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
	}
}

// block is one AST top-level node, flattened with the metadata the walk
// collected about it.
type block struct {
	content      string
	startOffset  int
	endOffset    int
	heading      string
	hasTable     bool
	hasList      bool
	codeLanguage string
}

// Split parses content as Markdown and produces chunks scoped to
// documentID, respecting the token budget and attaching structural
// metadata detected via the AST walk.
func (s *MarkdownSplitter) Split(documentID, title, content string) ([]ragtypes.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	source := []byte(content)
	doc := s.md.Parser().Parse(text.NewReader(source))

	blocks, err := s.collectBlocks(doc, source)
	if err != nil {
		return nil, fmt.Errorf("chunker: walk document %q: %w", documentID, err)
	}
	if len(blocks) == 0 {
		blocks = []block{{content: content, startOffset: 0, endOffset: len(content)}}
	}

	return s.packBlocks(documentID, title, blocks), nil
}

// collectBlocks walks the document's top-level children, tracking the
// nearest preceding heading and flagging table/list/code content within
// each block's subtree.
func (s *MarkdownSplitter) collectBlocks(doc ast.Node, source []byte) ([]block, error) {
	var blocks []block
	var currentHeading string

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			currentHeading = nodeText(h, source)
			continue
		}

		b := block{
			heading: currentHeading,
			content: strings.TrimSpace(string(nodeSourceText(n, source))),
		}
		if seg := firstSegment(n); seg != nil {
			b.startOffset = seg.Start
		}
		if seg := lastSegment(n); seg != nil {
			b.endOffset = seg.Stop
		} else {
			b.endOffset = b.startOffset + len(b.content)
		}

		ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			switch c.(type) {
			case *ast.List:
				b.hasList = true
			case *extast.Table:
				b.hasTable = true
			}
			if fcb, ok := c.(*ast.FencedCodeBlock); ok {
				lang := string(fcb.Language(source))
				if lang == "" {
					lang = guessCodeLanguage(codeBlockText(fcb, source))
				}
				if lang != "" && b.codeLanguage == "" {
					b.codeLanguage = lang
				}
			}
			return ast.WalkContinue, nil
		})

		if b.content != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}

// packBlocks greedily merges consecutive blocks into chunks that fit
// MaxChunkTokens, splitting an over-large single block at paragraph
// boundaries.
func (s *MarkdownSplitter) packBlocks(documentID, title string, blocks []block) []ragtypes.Chunk {
	var chunks []ragtypes.Chunk
	var current []block
	currentTokens := 0
	chunkIndex := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, s.buildChunk(documentID, title, current, chunkIndex))
		chunkIndex++
		current = nil
		currentTokens = 0
	}

	for _, b := range blocks {
		bTokens := estimateTokens(b.content)
		if bTokens > s.opts.MaxChunkTokens {
			flush()
			for _, piece := range splitOverlong(b, s.opts.MaxChunkTokens, s.opts.OverlapTokens) {
				chunks = append(chunks, s.buildChunk(documentID, title, []block{piece}, chunkIndex))
				chunkIndex++
			}
			continue
		}
		if currentTokens > 0 && currentTokens+bTokens > s.opts.MaxChunkTokens {
			flush()
		}
		current = append(current, b)
		currentTokens += bTokens
	}
	flush()

	return chunks
}

// splitOverlong splits an over-budget block at paragraph boundaries,
// carrying the trailing overlapTokens worth of each piece forward into
// the next so neighboring chunks share context.
func splitOverlong(b block, maxTokens, overlapTokens int) []block {
	paragraphs := strings.Split(b.content, "\n\n")
	var pieces []block
	var buf strings.Builder
	offset := b.startOffset
	var carry string

	flush := func() {
		content := strings.TrimSpace(buf.String())
		if content == "" {
			return
		}
		pieces = append(pieces, block{
			content:      content,
			startOffset:  offset,
			endOffset:    offset + len(content),
			heading:      b.heading,
			hasTable:     b.hasTable,
			hasList:      b.hasList,
			codeLanguage: b.codeLanguage,
		})
		offset += len(content)
		carry = overlapTail(content, overlapTokens)
		buf.Reset()
		if carry != "" {
			buf.WriteString(carry)
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if buf.Len() > 0 && estimateTokens(buf.String())+estimateTokens(p) > maxTokens {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	flush()
	if len(pieces) == 0 {
		pieces = []block{b}
	}
	return pieces
}

// overlapTail returns the trailing chunk of content worth roughly
// overlapTokens, truncated at a word boundary.
func overlapTail(content string, overlapTokens int) string {
	maxChars := overlapTokens * tokensPerChar
	if maxChars <= 0 || maxChars >= len(content) {
		return ""
	}
	tail := content[len(content)-maxChars:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		tail = tail[idx+1:]
	}
	return tail
}

func (s *MarkdownSplitter) buildChunk(documentID, title string, blocks []block, index int) ragtypes.Chunk {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.content)
	}
	content := strings.Join(parts, "\n\n")

	first, last := blocks[0], blocks[len(blocks)-1]
	heading := first.heading

	hasTable, hasList := false, false
	codeLanguage := ""
	for _, b := range blocks {
		hasTable = hasTable || b.hasTable
		hasList = hasList || b.hasList
		if codeLanguage == "" {
			codeLanguage = b.codeLanguage
		}
	}

	meta := ragtypes.Metadata{
		ragtypes.MetaDocumentID:  ragtypes.StringScalar(documentID),
		ragtypes.MetaTitle:       ragtypes.StringScalar(title),
		ragtypes.MetaHeading:     ragtypes.StringScalar(heading),
		ragtypes.MetaHasTable:    ragtypes.BoolScalar(hasTable),
		ragtypes.MetaHasList:     ragtypes.BoolScalar(hasList),
		ragtypes.MetaComplexity:  ragtypes.NumberScalar(readingComplexity(content)),
		ragtypes.MetaFingerprint: ragtypes.StringScalar(fingerprint(content)),
	}
	if codeLanguage != "" {
		meta[ragtypes.MetaCodeLanguage] = ragtypes.StringScalar(codeLanguage)
	}

	chunk := ragtypes.Chunk{
		ID:          fmt.Sprintf("%s-%d", fingerprint(documentID+content)[:16], index),
		Content:     content,
		ChunkIndex:  index,
		StartOffset: first.startOffset,
		EndOffset:   last.endOffset,
		Metadata:    meta,
	}
	if chunk.EndOffset <= chunk.StartOffset {
		chunk.EndOffset = chunk.StartOffset + len(content)
	}
	if s.opts.Contextualize && heading != "" {
		chunk.ContextualContent = fmt.Sprintf("[Section: %s]\n%s", heading, content)
	}
	return chunk
}

// languageSignatures maps a handful of keyword/identifier-style tells to
// a language name. This is a deliberately lightweight stand-in for full
// grammar-based detection (see DESIGN.md for why tree-sitter was dropped).
var languageSignatures = []struct {
	lang     string
	keywords []string
}{
	{"go", []string{"func ", "package ", ":="}},
	{"python", []string{"def ", "import ", "elif "}},
	{"javascript", []string{"function ", "const ", "=>"}},
	{"rust", []string{"fn ", "let mut", "impl "}},
	{"java", []string{"public class", "private ", "System.out"}},
}

// guessCodeLanguage applies languageSignatures, then falls back to an
// identifier-casing tell: camelCase identifiers (via
// tokenizer.SplitCamelCase yielding >1 part) lean JS/Java, snake_case
// identifiers lean Python/Rust.
func guessCodeLanguage(code string) string {
	for _, sig := range languageSignatures {
		for _, kw := range sig.keywords {
			if strings.Contains(code, kw) {
				return sig.lang
			}
		}
	}

	camelHits, snakeHits := 0, 0
	for _, word := range strings.Fields(code) {
		if len(tokenizer.SplitCamelCase(word)) > 1 {
			camelHits++
		}
		if strings.Contains(word, "_") {
			snakeHits++
		}
	}
	switch {
	case camelHits > snakeHits && camelHits > 0:
		return "javascript"
	case snakeHits > 0:
		return "python"
	default:
		return ""
	}
}

func codeBlockText(fcb *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := fcb.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func estimateTokens(content string) int {
	return len(content) / tokensPerChar
}

// fingerprint returns a stable content-addressable hash, matching the
// teacher's chunk-ID derivation approach.
func fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// readingComplexity is a lightweight Flesch-ease-adjacent heuristic:
// average sentence length in words plus average word length in
// characters, normalized to roughly [0, 100] with higher meaning harder.
func readingComplexity(content string) float64 {
	sentences := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	wordCount := len(strings.Fields(content))
	if wordCount == 0 || len(sentences) == 0 {
		return 0
	}
	avgSentenceLen := float64(wordCount) / float64(len(sentences))
	totalChars := 0
	for _, w := range strings.Fields(content) {
		totalChars += len(w)
	}
	avgWordLen := float64(totalChars) / float64(wordCount)
	score := 0.6*avgSentenceLen + 4*avgWordLen
	return math.Min(100, math.Max(0, score))
}

// nodeText extracts the rendered text of a node's immediate text
// children, used for heading titles.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			continue
		}
		buf.WriteString(nodeText(c, source))
	}
	return buf.String()
}

// nodeSourceText reconstructs a block node's raw source text by
// concatenating its line segments.
func nodeSourceText(n ast.Node, source []byte) []byte {
	lines := n.Lines()
	if lines != nil && lines.Len() > 0 {
		var buf bytes.Buffer
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		return buf.Bytes()
	}
	// Container nodes (lists, tables) carry no direct Lines(); fall back
	// to the rendered text of their descendants.
	return []byte(nodeText(n, source))
}

func firstSegment(n ast.Node) *text.Segment {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return nil
	}
	seg := lines.At(0)
	return &seg
}

func lastSegment(n ast.Node) *text.Segment {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return nil
	}
	seg := lines.At(lines.Len() - 1)
	return &seg
}
