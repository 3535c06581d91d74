package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
	"github.com/aman-cerp/ragcore/pkg/rag"
)

func newSearchCmd() *cobra.Command {
	var topK int
	var iterative bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query terms...>",
		Short: "Retrieve documents for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			p, err := newPipeline()
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer p.Close()

			if topK > 0 {
				p.UpdateConfig(rag.Config{TopK: topK})
			}

			var result *rag.Context
			if iterative {
				result = p.RetrieveIterative(cmd.Context(), query, collection, rag.RetrieveOptions{})
			} else {
				result = p.Retrieve(cmd.Context(), query, collection)
			}

			if jsonOutput {
				return printSearchJSON(result)
			}
			printSearchText(query, result)
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "override the configured result count")
	cmd.Flags().BoolVar(&iterative, "iterative", false, "refine the query across rounds until enough relevant documents are found")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON")

	return cmd
}

func printSearchText(query string, result *rag.Context) {
	w := out()
	if result.Empty() {
		w.Warningf("no results for %q", query)
		return
	}

	w.Successf("%d result(s) for %q (request_id=%s)", len(result.Documents), query, result.SearchMetadata.RequestID)
	w.Newline()
	for i, doc := range result.Documents {
		title := metaString(doc.Metadata, ragtypes.MetaTitle)
		w.Statusf("", "%d. [%.4f] %s", i+1, doc.RerankScore, title)
		w.Field("chunk_id", doc.ID)
		w.Field("source", doc.Source)
		w.Field("snippet", truncate(doc.Content, 160))
		w.Newline()
	}

	meta := result.SearchMetadata
	w.Field("hybrid_search", meta.HybridSearchUsed)
	w.Field("expansion", meta.ExpansionUsed)
	w.Field("reranking", meta.RerankingUsed)
	w.Field("corrective_rag", meta.CorrectiveUsed)
	w.Field("fallback_used", meta.FallbackUsed)
	w.Field("cache_hit", meta.CacheHit)
}

type searchJSONDoc struct {
	ChunkID     string  `json:"chunk_id"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	RerankScore float64 `json:"rerank_score"`
	Source      string  `json:"source"`
}

type searchJSONOutput struct {
	Query            string          `json:"query"`
	RequestID        string          `json:"request_id"`
	Documents        []searchJSONDoc `json:"documents"`
	FormattedContext string          `json:"formatted_context"`
	Metadata         ragtypes.SearchMetadata `json:"metadata"`
}

func printSearchJSON(result *rag.Context) error {
	docs := make([]searchJSONDoc, len(result.Documents))
	for i, d := range result.Documents {
		docs[i] = searchJSONDoc{
			ChunkID:     d.ID,
			Title:       metaString(d.Metadata, ragtypes.MetaTitle),
			Content:     d.Content,
			RerankScore: d.RerankScore,
			Source:      string(d.Source),
		}
	}
	payload := searchJSONOutput{
		Query:            result.Query,
		RequestID:        result.SearchMetadata.RequestID,
		Documents:        docs,
		FormattedContext: result.FormattedContext,
		Metadata:         result.SearchMetadata,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func metaString(md ragtypes.Metadata, key string) string {
	v, ok := md[key]
	if !ok {
		return ""
	}
	return v.String()
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
