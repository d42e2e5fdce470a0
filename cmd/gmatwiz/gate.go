package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

func newGateCmd(a **app) *cobra.Command {
	gateCmd := &cobra.Command{
		Use:   "gate",
		Short: "Evaluate mastery gates",
	}

	var userID, atomID string
	evalCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the default mastery gate for one atom",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			gateID := core.GateID(fmt.Sprintf("mastery:%s", atomID))
			ev, err := app.gates.EvaluateGate(ctx, userID, gateID)
			if err != nil {
				return fmt.Errorf("evaluate gate: %w", err)
			}

			fmt.Printf("gate=%s status=%s percent=%.1f%%\n", ev.Gate.ID, ev.Progress.Status, ev.Progress.PercentComplete)
			for key, sub := range ev.Progress.Details {
				fmt.Printf("  %-22s status=%-12s current=%.2f required=%.2f\n", key, sub.Status, sub.CurrentValue, sub.RequiredValue)
			}
			return nil
		},
	}
	evalCmd.Flags().StringVar(&userID, "user", "", "user id")
	evalCmd.Flags().StringVar(&atomID, "atom", "", "atom id")
	_ = evalCmd.MarkFlagRequired("user")
	_ = evalCmd.MarkFlagRequired("atom")

	var summaryUser string
	var summaryAtoms []string
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize gate status across several atoms",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			ids := make([]core.GateID, 0, len(summaryAtoms))
			for _, atom := range summaryAtoms {
				ids = append(ids, core.GateID(fmt.Sprintf("mastery:%s", atom)))
			}

			summary, err := app.gates.GateSummary(ctx, summaryUser, ids)
			if err != nil {
				return fmt.Errorf("gate summary: %w", err)
			}

			fmt.Printf("gates=%d passed=%d in_progress=%d locked=%d xp_available=%d\n",
				summary.Total, summary.Passed, summary.InProgress, summary.Locked, summary.XPAvailable)
			for id, ev := range summary.Results {
				fmt.Printf("  %-28s status=%-12s percent=%.1f%%\n", id, ev.Progress.Status, ev.Progress.PercentComplete)
			}
			return nil
		},
	}
	summaryCmd.Flags().StringVar(&summaryUser, "user", "", "user id")
	summaryCmd.Flags().StringSliceVar(&summaryAtoms, "atoms", nil, "comma-separated atom ids")
	_ = summaryCmd.MarkFlagRequired("user")
	_ = summaryCmd.MarkFlagRequired("atoms")

	gateCmd.AddCommand(evalCmd)
	gateCmd.AddCommand(summaryCmd)
	return gateCmd
}
