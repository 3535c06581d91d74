// Package mcpsrv exposes the retrieval core as an MCP server, porting
// the teacher's internal/mcp server wrapper: tool input/output structs
// tagged for jsonschema generation, handlers that never turn pipeline
// degraded-paths into protocol errors, and a thin NewServer constructor.
package mcpsrv

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
	"github.com/aman-cerp/ragcore/pkg/rag"
	"github.com/aman-cerp/ragcore/pkg/version"
)

// Server bridges MCP clients to a rag.Pipeline.
type Server struct {
	mcp      *mcp.Server
	pipeline *rag.Pipeline
	logger   *slog.Logger
}

// IndexDocumentInput is the input schema for the index_document tool.
type IndexDocumentInput struct {
	Collection    string `json:"collection" jsonschema:"collection to index into"`
	Content       string `json:"content" jsonschema:"raw document text to chunk and index"`
	Title         string `json:"title,omitempty" jsonschema:"document title, used for contextual chunk prefixes"`
	DocumentID    string `json:"document_id,omitempty" jsonschema:"explicit source document id; auto-generated when omitted"`
	ContextEnrich bool   `json:"context_enrich,omitempty" jsonschema:"add heading/LM-generated contextual prefixes to each chunk"`
}

// IndexDocumentOutput is the output schema for the index_document tool.
type IndexDocumentOutput struct {
	DocumentID    string `json:"document_id"`
	ChunksCreated int    `json:"chunks_created"`
	Skipped       bool   `json:"skipped"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query      string `json:"query" jsonschema:"the natural-language query to retrieve context for"`
	Collection string `json:"collection" jsonschema:"collection to search"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"maximum number of documents to return, default configured top_k"`
}

// RetrievedDocument is one document in a RetrieveOutput.
type RetrievedDocument struct {
	ChunkID     string  `json:"chunk_id"`
	Title       string  `json:"title,omitempty"`
	Content     string  `json:"content"`
	RerankScore float64 `json:"rerank_score"`
	Source      string  `json:"source"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	RequestID        string               `json:"request_id"`
	Documents        []RetrievedDocument  `json:"documents"`
	FormattedContext string               `json:"formatted_context"`
	CacheHit         bool                 `json:"cache_hit"`
}

// NewServer builds an MCP server wrapping pipeline. logger defaults to
// slog.Default() when nil.
func NewServer(pipeline *rag.Pipeline, logger *slog.Logger) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("mcpsrv: pipeline is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{pipeline: pipeline, logger: logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "ragcore", Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying *mcp.Server, for Run(ctx, transport).
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_document",
		Description: "Chunk, embed, and index a document's content into a named collection for later retrieval.",
	}, s.handleIndexDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "retrieve",
		Description: "Run hybrid search, reranking, and context assembly over an indexed collection and return relevant documents with a formatted context window.",
	}, s.handleRetrieve)

	s.logger.Debug("mcp tools registered", slog.Int("count", 2))
}

func (s *Server) handleIndexDocument(ctx context.Context, _ *mcp.CallToolRequest, input IndexDocumentInput) (*mcp.CallToolResult, IndexDocumentOutput, error) {
	if input.Collection == "" {
		return nil, IndexDocumentOutput{}, errors.New("collection is required")
	}
	if input.Content == "" {
		return nil, IndexDocumentOutput{}, errors.New("content is required")
	}

	result := s.pipeline.IndexDocument(ctx, input.Content, rag.IndexingOptions{
		Collection:    input.Collection,
		Title:         input.Title,
		DocumentID:    input.DocumentID,
		ContextEnrich: input.ContextEnrich,
	})

	out := IndexDocumentOutput{
		DocumentID:    result.DocumentID,
		ChunksCreated: result.ChunksCreated,
		Skipped:       result.Skipped,
		Success:       result.Success,
	}
	if result.Error != nil {
		out.Error = result.Error.Message
	}
	return nil, out, nil
}

func (s *Server) handleRetrieve(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
	if input.Query == "" {
		return nil, RetrieveOutput{}, errors.New("query is required")
	}
	if input.Collection == "" {
		return nil, RetrieveOutput{}, errors.New("collection is required")
	}

	if input.TopK > 0 {
		s.pipeline.UpdateConfig(rag.Config{TopK: input.TopK})
	}

	result := s.pipeline.Retrieve(ctx, input.Query, input.Collection)

	out := RetrieveOutput{
		RequestID:        result.SearchMetadata.RequestID,
		FormattedContext: result.FormattedContext,
		CacheHit:         result.SearchMetadata.CacheHit,
		Documents:        make([]RetrievedDocument, 0, len(result.Documents)),
	}
	for _, d := range result.Documents {
		out.Documents = append(out.Documents, RetrievedDocument{
			ChunkID:     d.ID,
			Title:       metaString(d.Metadata, ragtypes.MetaTitle),
			Content:     d.Content,
			RerankScore: d.RerankScore,
			Source:      string(d.Source),
		})
	}
	return nil, out, nil
}

func metaString(md ragtypes.Metadata, key string) string {
	v, ok := md[key]
	if !ok {
		return ""
	}
	return v.String()
}
