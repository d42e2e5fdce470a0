package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/rating"
)

func newProgressionCmd(a **app) *cobra.Command {
	progressionCmd := &cobra.Command{
		Use:   "progression",
		Short: "Inspect a user's XP, level, and gate progress",
	}

	var userID string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's progression state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			state, err := app.users.Get(ctx, userID)
			if err != nil {
				return fmt.Errorf("load progression: %w", err)
			}
			globalRating, err := app.ratings.Get(ctx, userID, globalScope())
			if err != nil {
				return fmt.Errorf("load global rating: %w", err)
			}

			levelNum := app.levels.LevelForXP(state.TotalXP)
			levelName := app.levels.Name(levelNum)
			fmt.Printf("user=%s level=%d (%s) total_xp=%d\n", userID, levelNum, levelName, state.TotalXP)
			fmt.Printf("global_rating=%d (gmat_display=%.0f) games_played=%d\n",
				globalRating.Value, rating.EloToGmat(globalRating.Value), globalRating.GamesPlayed)
			fmt.Printf("mastered_atoms=%d passed_gates=%d\n", len(state.MasteredAtomIDs), len(state.PassedGateIDs))
			return nil
		},
	}
	showCmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = showCmd.MarkFlagRequired("user")

	progressionCmd.AddCommand(showCmd)
	return progressionCmd
}
