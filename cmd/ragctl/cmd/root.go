// Package cmd provides the ragctl CLI commands, ported from the
// teacher's cmd/amanmcp/cmd cobra structure.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/ragcore/internal/clioutput"
	"github.com/aman-cerp/ragcore/internal/persist"
	"github.com/aman-cerp/ragcore/internal/staticembed"
	"github.com/aman-cerp/ragcore/internal/vectorstore"
	"github.com/aman-cerp/ragcore/pkg/rag"
	"github.com/aman-cerp/ragcore/pkg/version"
)

var (
	dataDir    string
	collection string
)

// NewRootCmd builds the ragctl root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "ragctl",
		Short:   "Operator CLI for the ragcore hybrid retrieval core",
		Long:    "ragctl indexes and searches documents through ragcore's retrieval pipeline using a built-in hash-based embedder, for operating and exercising the library without a separate embedding service.",
		Version: version.Version,
	}
	root.SetVersionTemplate("ragctl version {{.Version}}\n")

	root.PersistentFlags().StringVar(&dataDir, "data-dir", ".ragcore", "directory for the persistent SQLite mirror")
	root.PersistentFlags().StringVar(&collection, "collection", "default", "collection name")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newFeedbackCmd())
	root.AddCommand(newCacheCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// newPipeline builds a rag.Pipeline wired to the built-in static embedder,
// an in-process HNSW vector store, and a SQLite persistent mirror rooted
// at dataDir, per SPEC_FULL.md §0's "ragctl exercises the library end to
// end" requirement.
func newPipeline() (*rag.Pipeline, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	opts := rag.Options{
		Embedder:        staticembed.New(),
		VectorStore:     vectorstore.New(vectorstore.DefaultConfig()),
		PersistentStore: persist.New(filepath.Join(dataDir, "ragcore.db")),
	}
	return rag.New(rag.DefaultConfig(), opts)
}

func out() *clioutput.Writer {
	return clioutput.New(os.Stdout)
}

func errOut() *clioutput.Writer {
	return clioutput.New(os.Stderr)
}
