package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/ragcore/pkg/rag"
)

func newIndexCmd() *cobra.Command {
	var title string
	var docID string
	var contextEnrich bool
	var parentChild bool

	cmd := &cobra.Command{
		Use:   "index <file|->",
		Short: "Chunk, embed, and index a document into a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readSource(args[0])
			if err != nil {
				return err
			}

			p, err := newPipeline()
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer p.Close()

			if title == "" {
				title = args[0]
			}
			result := p.IndexDocument(cmd.Context(), content, rag.IndexingOptions{
				Collection:    collection,
				DocumentID:    docID,
				Title:         title,
				ContextEnrich: contextEnrich,
				ParentChild:   parentChild,
			})

			w := out()
			if result.Error != nil {
				errOut().Errorf("index failed: %s", result.Error.Message)
				return fmt.Errorf("%s", result.Error.Code)
			}
			if result.Skipped {
				w.Successf("skipped (duplicate): document_id=%s", result.DocumentID)
				return nil
			}
			w.Successf("indexed document_id=%s chunks=%d collection=%s", result.DocumentID, result.ChunksCreated, collection)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "document title (defaults to the source path)")
	cmd.Flags().StringVar(&docID, "document-id", "", "explicit document id (defaults to an auto-generated one)")
	cmd.Flags().BoolVar(&contextEnrich, "context-enrich", false, "add heading/LM-generated contextual prefixes to each chunk")
	cmd.Flags().BoolVar(&parentChild, "parent-child", false, "retain each chunk's full source document for parent-child retrieval")

	return cmd
}

func readSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
