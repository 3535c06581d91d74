package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyContentReturnsNil(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	chunks, err := s.Split("doc1", "Title", "   \n\n  ")
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestSplit_PlainTextSingleChunk(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	chunks, err := s.Split("doc1", "Title", "just a plain paragraph of text with no markdown structure at all")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestSplit_HeadingAttachedAsNearestHeadingMetadata(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	content := "# Introduction\n\nThis section introduces the topic in detail with enough words to form a real paragraph.\n"
	chunks, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Introduction", chunks[0].Metadata.GetString("nearest_heading"))
}

func TestSplit_TableDetected(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	content := "# Data\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"
	chunks, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.True(t, chunks[0].Metadata.GetBool("has_table"))
}

func TestSplit_ListDetected(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	content := "# Items\n\n- one\n- two\n- three\n"
	chunks, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.True(t, chunks[0].Metadata.GetBool("has_list"))
}

func TestSplit_FencedCodeBlockLanguageDetected(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	content := "# Example\n\n```go\nfunc main() {}\n```\n"
	chunks, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "go", chunks[0].Metadata.GetString("code_language"))
}

func TestSplit_UndeclaredCodeLanguageGuessedFromKeywords(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	content := "# Example\n\n```\ndef hello():\n    import os\n```\n"
	chunks, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "python", chunks[0].Metadata.GetString("code_language"))
}

func TestSplit_OverlongSectionSplitsIntoMultipleChunks(t *testing.T) {
	opts := Options{MaxChunkTokens: 50, OverlapTokens: 10}
	s := NewMarkdownSplitter(opts)

	var paragraphs []string
	for i := 0; i < 10; i++ {
		paragraphs = append(paragraphs, strings.Repeat("word ", 40))
	}
	content := "# Big Section\n\n" + strings.Join(paragraphs, "\n\n")

	chunks, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
}

func TestSplit_ContentFingerprintIsDeterministic(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	content := "# Stable\n\nThis content should fingerprint the same way every time it is split.\n"
	chunksA, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	chunksB, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	require.Len(t, chunksA, 1)
	require.Len(t, chunksB, 1)
	assert.Equal(t, chunksA[0].Metadata.GetString("content_fingerprint"), chunksB[0].Metadata.GetString("content_fingerprint"))
}

func TestSplit_ChunkOffsetsAreValid(t *testing.T) {
	s := NewMarkdownSplitter(DefaultOptions())
	content := "# Heading\n\nSome content with real words to check offsets.\n"
	chunks, err := s.Split("doc1", "Title", content)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NoError(t, c.Validate())
	}
}

func TestGuessCodeLanguage_FallsBackToEmptyWhenUnclear(t *testing.T) {
	assert.Equal(t, "", guessCodeLanguage("12345 67890"))
}

func TestGuessCodeLanguage_DetectsGoKeyword(t *testing.T) {
	assert.Equal(t, "go", guessCodeLanguage("package main\nfunc main() {}"))
}
