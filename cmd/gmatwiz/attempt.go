package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/difficulty"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/pipeline"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/rating"
)

// attemptResultView is the JSON-serializable shape of a
// submit-attempt response, including the ELO-to-GMAT display
// conversion that the pipeline itself doesn't compute — that mapping
// is a presentation concern, not a rating-engine concern.
type attemptResultView struct {
	IsCorrect     bool           `json:"is_correct"`
	CorrectAnswer string         `json:"correct_answer"`
	OutcomeType   string         `json:"outcome_type"`
	RatingDeltas  map[string]int `json:"rating_deltas_by_scope"`
	XPAwarded     int            `json:"xp_awarded"`
	NewLevel      *int           `json:"new_level,omitempty"`
	PassedGates   []string       `json:"passed_gates,omitempty"`
	GlobalGmat    float64        `json:"global_gmat_display"`
}

func newAttemptCmd(a **app) *cobra.Command {
	attemptCmd := &cobra.Command{
		Use:   "attempt",
		Short: "Submit and inspect practice attempts",
	}

	var userID, questionID, choice, mode string
	var timeSpent int
	var guessed bool

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one answered question through the attempt pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			result, err := app.pipeline.Submit(ctx, pipeline.AttemptInput{
				UserID:         userID,
				QuestionID:     questionID,
				AnsweredChoice: choice,
				TimeSpentSec:   timeSpent,
				WasGuessed:     guessed,
				Mode:           difficulty.Mode(mode),
			})
			if err != nil {
				return fmt.Errorf("submit attempt: %w", err)
			}

			view := attemptResultView{
				IsCorrect:     result.IsCorrect,
				CorrectAnswer: result.CorrectAnswer,
				OutcomeType:   string(result.OutcomeType),
				RatingDeltas:  make(map[string]int, len(result.RatingDeltasByScope)),
				XPAwarded:     result.XPAwarded,
				NewLevel:      result.NewLevel,
			}
			for scope, delta := range result.RatingDeltasByScope {
				view.RatingDeltas[string(scope)] = delta
			}
			for _, g := range result.PassedGates {
				view.PassedGates = append(view.PassedGates, string(g))
			}
			if globalRating, err := app.ratings.Get(ctx, userID, globalScope()); err == nil {
				view.GlobalGmat = rating.EloToGmat(globalRating.Value)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
	submitCmd.Flags().StringVar(&userID, "user", "", "user id")
	submitCmd.Flags().StringVar(&questionID, "question", "", "question id")
	submitCmd.Flags().StringVar(&choice, "choice", "", "answered choice letter")
	submitCmd.Flags().StringVar(&mode, "mode", string(difficulty.ModeBuild), "practice mode (build|prove|review|diagnostic)")
	submitCmd.Flags().IntVar(&timeSpent, "time-spent", 0, "seconds spent on the question")
	submitCmd.Flags().BoolVar(&guessed, "guessed", false, "mark this attempt as a guess")
	_ = submitCmd.MarkFlagRequired("user")
	_ = submitCmd.MarkFlagRequired("question")
	_ = submitCmd.MarkFlagRequired("choice")
	_ = submitCmd.MarkFlagRequired("time-spent")

	attemptCmd.AddCommand(submitCmd)
	return attemptCmd
}
