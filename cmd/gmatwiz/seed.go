package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// newSeedCmd prints the in-memory demo question bank. Every CLI
// invocation wires a fresh app with the same seed data, so this
// command exists to let a user confirm what's loaded before running
// select/attempt against it.
func newSeedCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "List the in-memory demo question bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			questions := seedQuestions()
			for _, q := range questions {
				fmt.Printf("%-14s section=%-22s topic=%-22s difficulty=%4d atoms=%v\n",
					q.ID, q.SectionCode, q.TopicCode, q.DifficultyRating, atomNames(q))
			}
			fmt.Printf("\n%d questions loaded into this process's in-memory store.\n", len(questions))
			return nil
		},
	}
}

func atomNames(q core.Question) []string {
	out := make([]string, 0, len(q.Atoms))
	for a := range q.Atoms {
		out = append(out, string(a))
	}
	sort.Strings(out)
	return out
}
