package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or invalidate the query cache",
	}
	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheInvalidateCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show query cache hit/miss counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline()
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer p.Close()

			cs := p.GetCacheStats()
			w := out()
			w.Field("hits", cs.Hits)
			w.Field("misses", cs.Misses)
			w.Field("hit_rate", fmt.Sprintf("%.2f%%", cs.HitRate*100))
			w.Field("size", cs.Size)
			return nil
		},
	}
}

func newCacheInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Drop every cached result for the current collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline()
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer p.Close()

			n := p.InvalidateCache(collection)
			out().Successf("invalidated %d cached result(s) for collection %s", n, collection)
			return nil
		},
	}
}
