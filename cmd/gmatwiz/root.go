package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/config"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/gmatlog"
)

// newRootCmd builds the gmatwiz command tree. Every subcommand shares
// one *app, wired once in PersistentPreRunE, rather than each command
// constructing its own repositories.
func newRootCmd() *cobra.Command {
	var configPath string
	var logLevel string
	var dsn string
	var redisAddr string
	var a *app

	root := &cobra.Command{
		Use:     appName,
		Short:   "Adaptive GMAT practice engine",
		Version: version,
		Long: `gmatwiz is an adaptive learning core for GMAT practice: it rates
learners and questions on a shared scale, matches difficulty to a
practice mode's target win rate, selects the next question, schedules
spaced review, evaluates mastery gates, and tracks XP and levels.

Run 'gmatwiz' with no arguments in a terminal for a quick interactive
summary. Subcommands are the automation surface for scripts and CI.`,
		Run: runDefaultEntry,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("parse log level %q: %w", logLevel, err)
			}
			log := gmatlog.Init(level)

			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if dsn != "" {
				cfg.Database.DSN = dsn
			}
			if redisAddr != "" {
				cfg.Redis.Addr = redisAddr
			}

			a, err = newApp(cfg, log)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a != nil {
				return a.close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to engine config YAML (defaults built in)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres DSN; empty runs against in-memory repositories")
	root.PersistentFlags().StringVar(&redisAddr, "redis", "", "redis address for the read-through cache; empty stays in-process")

	root.AddCommand(newSeedCmd(&a))
	root.AddCommand(newAttemptCmd(&a))
	root.AddCommand(newSelectCmd(&a))
	root.AddCommand(newReviewCmd(&a))
	root.AddCommand(newGateCmd(&a))
	root.AddCommand(newProgressionCmd(&a))
	root.AddCommand(newServeCmd(&a))

	return root
}

// runDefaultEntry is the TTY-gated default entry point: an
// interactive terminal gets a short orientation printed to stdout,
// a non-interactive invocation (CI, pipe) gets automation guidance on
// stderr and a non-zero exit so scripts fail fast instead of hanging.
func runDefaultEntry(cmd *cobra.Command, args []string) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "gmatwiz requires a subcommand in non-interactive use.")
		fmt.Fprintln(os.Stderr, "  gmatwiz seed")
		fmt.Fprintln(os.Stderr, "  gmatwiz select --user u1 --mode build --section quant --count 5")
		fmt.Fprintln(os.Stderr, "  gmatwiz attempt submit --user u1 --question q-quant-100 --choice A --time-spent 60")
		fmt.Fprintln(os.Stderr, "  gmatwiz review due --user u1")
		fmt.Fprintln(os.Stderr, "  gmatwiz gate evaluate --user u1 --atom fractions")
		fmt.Fprintln(os.Stderr, "  gmatwiz progression show --user u1")
		fmt.Fprintln(os.Stderr, "  gmatwiz --help")
		os.Exit(2)
	}

	fmt.Println("gmatwiz — adaptive GMAT practice engine")
	fmt.Println("Run 'gmatwiz --help' for the full subcommand list.")
	fmt.Println("Try: gmatwiz seed && gmatwiz select --user demo --mode build --section quant --count 5")
}
