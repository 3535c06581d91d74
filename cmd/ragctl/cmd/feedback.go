package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

func newFeedbackCmd() *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "feedback <query> <chunk-id> <relevance>",
		Short: "Record a relevance observation for adaptive reranking",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			relevance, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("relevance must be a number in [0,1]: %w", err)
			}
			act, err := parseFeedbackAction(action)
			if err != nil {
				return err
			}

			p, err := newPipeline()
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			defer p.Close()

			p.RecordFeedback(args[0], args[1], relevance, act)
			out().Success("feedback recorded")
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "explicit", "feedback action: click, use, dismiss, or explicit")

	return cmd
}

func parseFeedbackAction(s string) (ragtypes.FeedbackAction, error) {
	switch ragtypes.FeedbackAction(s) {
	case ragtypes.ActionClick, ragtypes.ActionUse, ragtypes.ActionDismiss, ragtypes.ActionExplicit:
		return ragtypes.FeedbackAction(s), nil
	default:
		return "", fmt.Errorf("unknown feedback action %q", s)
	}
}
