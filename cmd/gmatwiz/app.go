package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/cache"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/config"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/difficulty"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/gate"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/memrepo"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/persistence/postgres"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/pipeline"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/progression"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/repo"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/repoguard"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/review"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/selector"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/telemetry"
)

// app bundles the repository set and the wired components the CLI
// subcommands drive: a single struct threading shared collaborators to
// command handlers instead of package-level globals. Repositories are
// in-memory by default and Postgres-backed when a DSN is configured.
type app struct {
	cfg *config.EngineConfig
	log zerolog.Logger
	db  *sqlx.DB // nil when running in-memory

	questions repo.QuestionRepo
	ratings   repo.RatingRepo
	attempts  repo.AttemptRepo
	mastery   repo.MasteryRepo
	reviews   repo.ReviewRepo
	users     repo.UserStateRepo

	metrics   *telemetry.Registry
	selector  *selector.Selector
	scheduler *review.Scheduler
	pipeline  *pipeline.Pipeline
	gates     *gate.Service
	levels    *progression.Table
}

// close releases the database handle when one was opened.
func (a *app) close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// rngAdapter bridges math/rand.Rand to the selector.RNG interface.
// The CLI uses a fixed seed for reproducible demo runs.
type rngAdapter struct{ r *rand.Rand }

func (a rngAdapter) Intn(n int) int { return a.r.Intn(n) }

func newApp(cfg *config.EngineConfig, log zerolog.Logger) (*app, error) {
	var (
		db        *sqlx.DB
		questions repo.QuestionRepo
		ratings   repo.RatingRepo
		attempts  repo.AttemptRepo
		mastery   repo.MasteryRepo
		reviews   repo.ReviewRepo
		users     repo.UserStateRepo
	)

	if cfg.Database.DSN != "" {
		var err error
		db, err = sqlx.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

		timeout := cfg.Database.QueryTimeout
		questions = postgres.NewQuestionRepo(db, timeout)
		ratings = postgres.NewRatingRepo(db, timeout)
		attempts = postgres.NewAttemptRepo(db, timeout)
		mastery = postgres.NewMasteryRepo(db, timeout)
		reviews = postgres.NewReviewRepo(db, timeout)
		users = postgres.NewUserStateRepo(db, timeout)
		log.Info().Msg("repositories backed by postgres")
	} else {
		memQuestions := memrepo.NewQuestions(seedQuestions()...)
		memAttempts := memrepo.NewAttempts()
		memAttempts.Questions = memQuestions
		questions = memQuestions
		ratings = memrepo.NewRatings()
		attempts = memAttempts
		mastery = memrepo.NewMastery()
		reviews = memrepo.NewReviews()
		users = memrepo.NewUserStates()
	}

	var appCache cache.Cache = cache.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		appCache = cache.NewFallbackCache(cache.NewRedisCache(client), cache.NewMemoryCache())
		log.Info().Str("addr", cfg.Redis.Addr).Msg("cache backed by redis")
	}

	metrics := telemetry.NewRegistry()

	sched := review.NewScheduler(reviews, time.Now)
	sched.Cache = appCache

	sel := selector.NewSelector(questions, sched, rngAdapter{rand.New(rand.NewSource(1))})
	sel.Cache = appCache
	sel.Metrics = metrics
	sel.Mastery = mastery
	sel.Plan = planFromConfig(cfg.Selection.PlanRatios)
	sel.TopPoolMultiplier = cfg.Selection.TopPoolMultiplier
	sel.RandomWindow = cfg.Selection.RandomWindow
	sel.DefaultMaxSameAtom = cfg.Selection.MaxSameAtomPerSession

	masteryParams := gate.MasteryGateParams{
		AccuracyThreshold: cfg.Gates.MasteryAccuracyThreshold,
		MinAttempts:       cfg.Gates.MasteryMinAttempts,
		MinStreak:         cfg.Gates.MasteryMinStreak,
		XPReward:          cfg.Gates.DefaultXPReward,
	}

	gateSvc := gate.NewService(map[core.GateID]gate.Gate{}, mastery, attempts)
	gateSvc.MasteryParams = masteryParams

	levels := progression.NewTable(levelsFromConfig(cfg.Levels), cfg.LevelGates)

	ratingsGuard := repoguard.NewWithMetrics("ratings", metrics)

	pipe := &pipeline.Pipeline{
		Questions:          questions,
		Ratings:            ratings,
		Attempts:           attempts,
		Mastery:            mastery,
		UserState:          users,
		Scheduler:          sched,
		Gates:              map[core.GateID]gate.Gate{},
		RatingsGuard:       ratingsGuard,
		Metrics:            metrics,
		Log:                log,
		Levels:             levels,
		MasteryGate:        masteryParams,
		Now:                time.Now,
		MaxConflictRetries: 3,
	}

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		questions: questions,
		ratings:   ratings,
		attempts:  attempts,
		mastery:   mastery,
		reviews:   reviews,
		users:     users,
		metrics:   metrics,
		selector:  sel,
		scheduler: sched,
		pipeline:  pipe,
		gates:     gateSvc,
		levels:    levels,
	}, nil
}

// planFromConfig converts the YAML plan ratios (string-keyed) into the
// selector's typed plan table.
func planFromConfig(ratios map[string]map[string]float64) map[difficulty.Mode]map[selector.SelectionReason]float64 {
	if len(ratios) == 0 {
		return nil
	}
	out := make(map[difficulty.Mode]map[selector.SelectionReason]float64, len(ratios))
	for mode, byReason := range ratios {
		typed := make(map[selector.SelectionReason]float64, len(byReason))
		for reason, ratio := range byReason {
			typed[selector.SelectionReason(reason)] = ratio
		}
		out[difficulty.Mode(mode)] = typed
	}
	return out
}

// levelsFromConfig converts the YAML level table into progression's.
func levelsFromConfig(levels []config.LevelConfig) []progression.Level {
	if len(levels) == 0 {
		return nil
	}
	out := make([]progression.Level, 0, len(levels))
	for _, l := range levels {
		out = append(out, progression.Level{Number: l.Number, Name: l.Name, MinXP: l.MinXP})
	}
	return out
}

// seedQuestions returns a small illustrative question bank spanning
// three sections, a spread of difficulties, and a handful of shared
// atoms so the selector's weakness targeting and anti-repetition cap
// have something to bite on in local demo runs.
func seedQuestions() []core.Question {
	mk := func(id, section, topic, qtype string, difficulty int, atoms ...string) core.Question {
		atomSet := make(map[core.AtomID]struct{}, len(atoms))
		for _, a := range atoms {
			atomSet[core.AtomID(a)] = struct{}{}
		}
		quality := 4.2
		return core.Question{
			ID:               id,
			SectionCode:      section,
			TopicCode:        topic,
			QuestionTypeCode: qtype,
			DifficultyRating: difficulty,
			IsVerified:       true,
			QualityScore:     &quality,
			Source:           core.SourceSeeded,
			Atoms:            atomSet,
			CorrectChoice:    "A",
			TimeBudgetSec:    120,
		}
	}

	return []core.Question{
		mk("q-quant-100", "quant", "arithmetic", "problem_solving", 350, "fractions", "percents"),
		mk("q-quant-200", "quant", "arithmetic", "problem_solving", 450, "fractions", "ratios"),
		mk("q-quant-300", "quant", "algebra", "data_sufficiency", 500, "linear_equations"),
		mk("q-quant-400", "quant", "algebra", "data_sufficiency", 560, "linear_equations", "inequalities"),
		mk("q-quant-500", "quant", "geometry", "problem_solving", 620, "circles"),
		mk("q-quant-600", "quant", "geometry", "problem_solving", 700, "circles", "triangles"),
		mk("q-quant-700", "quant", "number_properties", "data_sufficiency", 760, "primes"),
		mk("q-quant-800", "quant", "number_properties", "data_sufficiency", 820, "primes", "divisibility"),
		mk("q-verbal-100", "verbal", "critical_reasoning", "critical_reasoning", 400, "assumption"),
		mk("q-verbal-200", "verbal", "critical_reasoning", "critical_reasoning", 520, "assumption", "strengthen"),
		mk("q-verbal-300", "verbal", "sentence_correction", "sentence_correction", 480, "modifiers"),
		mk("q-verbal-400", "verbal", "sentence_correction", "sentence_correction", 600, "modifiers", "parallelism"),
		mk("q-verbal-500", "verbal", "reading_comprehension", "reading_comprehension", 560, "inference"),
		mk("q-verbal-600", "verbal", "reading_comprehension", "reading_comprehension", 680, "inference", "main_idea"),
		mk("q-ir-100", "integrated_reasoning", "two_part", "two_part_analysis", 500, "graph_reading"),
		mk("q-ir-200", "integrated_reasoning", "multi_source", "multi_source_reasoning", 620, "graph_reading", "table_analysis"),
	}
}
