// Command ragmcp runs the retrieval core as an MCP server over stdio,
// exposing index_document and retrieve as tools for AI coding assistants,
// the way the teacher's amanmcp binary fronts its own search engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aman-cerp/ragcore/internal/mcpsrv"
	"github.com/aman-cerp/ragcore/internal/persist"
	"github.com/aman-cerp/ragcore/internal/staticembed"
	"github.com/aman-cerp/ragcore/internal/vectorstore"
	"github.com/aman-cerp/ragcore/pkg/rag"
)

func main() {
	dataDir := flag.String("data-dir", ".ragcore", "directory for the persistent SQLite mirror")
	flag.Parse()

	if err := run(*dataDir); err != nil {
		fmt.Fprintln(os.Stderr, "ragmcp:", err)
		os.Exit(1)
	}
}

func run(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// MCP over stdio requires stdout exclusively for JSON-RPC frames; all
	// diagnostic logging goes to stderr, matching the teacher's own rule
	// for its stdio transport.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	pipeline, err := rag.New(rag.DefaultConfig(), rag.Options{
		Embedder:        staticembed.New(),
		VectorStore:     vectorstore.New(vectorstore.DefaultConfig()),
		PersistentStore: persist.New(filepath.Join(dataDir, "ragcore.db")),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer pipeline.Close()

	server, err := mcpsrv.NewServer(pipeline, logger)
	if err != nil {
		return fmt.Errorf("build mcp server: %w", err)
	}

	return server.MCPServer().Run(context.Background(), &mcp.StdioTransport{})
}
