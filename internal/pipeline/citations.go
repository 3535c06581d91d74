package pipeline

import (
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

const citationSnippetLength = 160

// buildCitations answers spec.md §4.8 step 11: one citation per
// surviving document, carrying enough of its metadata and a short
// snippet of its content for a caller to attribute a generated answer.
func buildCitations(docs []ragtypes.RerankedDoc) []ragtypes.Citation {
	citations := make([]ragtypes.Citation, 0, len(docs))
	for _, d := range docs {
		citations = append(citations, ragtypes.Citation{
			ChunkID: d.ID,
			Source:  metadataString(d.Metadata, ragtypes.MetaSource),
			Title:   metadataString(d.Metadata, ragtypes.MetaTitle),
			Snippet: snippet(d.Content, citationSnippetLength),
		})
	}
	return citations
}

func metadataString(md ragtypes.Metadata, key string) string {
	if md == nil {
		return ""
	}
	if v, ok := md[key]; ok {
		return v.String()
	}
	return ""
}

func snippet(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}
