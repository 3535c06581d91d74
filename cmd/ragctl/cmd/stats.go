package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection and query-cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline()
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer p.Close()

			w := out()
			names := p.ListCollections(cmd.Context())
			if len(names) == 0 {
				w.Warning("no collections indexed yet")
			}
			for _, name := range names {
				s := p.GetCollectionStats(cmd.Context(), name)
				w.Statusf("", "collection %s", name)
				w.Field("documents", s.DocumentCount)
				w.Newline()
			}

			cs := p.GetCacheStats()
			w.Status("", "query cache")
			w.Field("hits", cs.Hits)
			w.Field("misses", cs.Misses)
			w.Field("hit_rate", fmt.Sprintf("%.2f%%", cs.HitRate*100))
			w.Field("size", cs.Size)
			return nil
		},
	}
	return cmd
}
