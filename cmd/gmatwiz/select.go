package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/difficulty"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/selector"
)

func newSelectCmd(a **app) *cobra.Command {
	var userID, mode, section string
	var count int

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select the next batch of questions for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			learnerRating, err := app.ratings.Get(ctx, userID, globalScope())
			if err != nil {
				return fmt.Errorf("load learner rating: %w", err)
			}

			results, err := app.selector.Select(ctx, userID, selector.Criteria{
				Mode:          difficulty.Mode(mode),
				SectionCode:   section,
				Count:         count,
				LearnerRating: learnerRating.Value,
			})
			if err != nil {
				return fmt.Errorf("select: %w", err)
			}

			for _, sq := range results {
				fmt.Printf("%-14s score=%-4d reason=%-12s difficulty=%d\n",
					sq.Question.ID, sq.Score, sq.Reason, sq.Question.DifficultyRating)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&mode, "mode", string(difficulty.ModeBuild), "practice mode (build|prove|review|diagnostic)")
	cmd.Flags().StringVar(&section, "section", "quant", "section code")
	cmd.Flags().IntVar(&count, "count", 5, "number of questions to select")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
