package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

func newReviewCmd(a **app) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and grade spaced-repetition review items",
	}

	var userID string
	var limit int
	dueCmd := &cobra.Command{
		Use:   "due",
		Short: "List due review items for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			items, err := app.scheduler.Due(ctx, userID, core.ReviewItemAtom, limit)
			if err != nil {
				return fmt.Errorf("due reviews: %w", err)
			}
			for _, item := range items {
				fmt.Printf("%-36s item=%-20s interval=%-4d ease=%.2f next=%s\n",
					item.ID, item.ItemID, item.IntervalDays, item.EaseFactor, item.NextReviewDate.Format("2006-01-02"))
			}
			return nil
		},
	}
	dueCmd.Flags().StringVar(&userID, "user", "", "user id")
	dueCmd.Flags().IntVar(&limit, "limit", 20, "maximum items to return")
	_ = dueCmd.MarkFlagRequired("user")

	var reviewID string
	var quality int
	gradeCmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a review item, applying the SM-2 transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			next, err := app.scheduler.Process(ctx, reviewID, quality)
			if err != nil {
				return fmt.Errorf("grade review: %w", err)
			}
			fmt.Printf("item=%-20s repetitions=%d interval=%d ease=%.2f next=%s\n",
				next.ItemID, next.Repetitions, next.IntervalDays, next.EaseFactor, next.NextReviewDate.Format("2006-01-02"))
			return nil
		},
	}
	gradeCmd.Flags().StringVar(&reviewID, "review-id", "", "review item id")
	gradeCmd.Flags().IntVar(&quality, "quality", 0, "SM-2 quality grade, 0-5")
	_ = gradeCmd.MarkFlagRequired("review-id")

	reviewCmd.AddCommand(dueCmd, gradeCmd)
	return reviewCmd
}
