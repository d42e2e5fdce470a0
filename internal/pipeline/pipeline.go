// Package pipeline implements the attempt pipeline: the single
// externally-visible Submit transaction that runs rating updates,
// mastery tracking, XP/progression, review scheduling, and gate
// evaluation as one atomic unit per learner. Steps run sequentially
// with wrapped errors; all rating snapshots are read before any write
// commits.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/difficulty"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/gate"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/progression"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/rating"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/repo"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/repoguard"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/review"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/telemetry"
)

// AttemptInput is the external submit_attempt request.
type AttemptInput struct {
	UserID         string
	QuestionID     string
	AnsweredChoice string
	TimeSpentSec   int
	WasGuessed     bool
	Mode           difficulty.Mode
}

// AttemptResult is the composite return value of submit_attempt.
type AttemptResult struct {
	IsCorrect           bool
	CorrectAnswer       string
	OutcomeType         progression.OutcomeType
	RatingDeltasByScope map[core.ScopeType]int
	XPAwarded           int
	NewLevel            *int
	PassedGates         []core.GateID
	NewReviewDates      map[core.AtomID]time.Time
}

// Pipeline wires together the repositories and pure calculators needed
// to run submit_attempt. Every component it depends on is injected —
// no singletons.
type Pipeline struct {
	Questions repo.QuestionRepo
	Ratings   repo.RatingRepo
	Attempts  repo.AttemptRepo
	Mastery   repo.MasteryRepo
	UserState repo.UserStateRepo
	Scheduler *review.Scheduler
	Gates     map[core.GateID]gate.Gate

	RatingsGuard *repoguard.Guard
	Metrics      *telemetry.Registry
	Log          zerolog.Logger

	// Levels is the level table (with any attached level gates) XP is
	// applied against; nil falls back to the built-in table.
	Levels *progression.Table

	// MasteryGate sets the thresholds for the mastery transition and
	// the synthesized per-atom gate; the zero value falls back to the
	// built-in thresholds.
	MasteryGate gate.MasteryGateParams

	Now func() time.Time

	// MaxConflictRetries bounds the number of times a transient
	// core.ErrConflict is retried before it is surfaced.
	MaxConflictRetries int
}

// scopesForQuestion derives the scope keys one attempt updates:
// global, section, topic, and question-type, all rated from the same
// pre-attempt snapshot.
func scopesForQuestion(q core.Question) []core.ScopeKey {
	return []core.ScopeKey{
		{ScopeType: core.ScopeGlobal},
		{ScopeType: core.ScopeSection, ScopeCode: q.SectionCode},
		{ScopeType: core.ScopeTopic, ScopeCode: q.TopicCode},
		{ScopeType: core.ScopeQuestionType, ScopeCode: q.QuestionTypeCode},
	}
}

// Submit runs the full attempt pipeline as one atomic unit: all
// rating snapshots are read before any write, then all writes commit
// together. A transient core.ErrConflict is retried up to
// MaxConflictRetries times before being surfaced.
func (p *Pipeline) Submit(ctx context.Context, in AttemptInput) (AttemptResult, error) {
	if in.TimeSpentSec <= 0 {
		return AttemptResult{}, fmt.Errorf("time spent %d: %w", in.TimeSpentSec, core.ErrInvalidInput)
	}

	maxRetries := p.MaxConflictRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var result AttemptResult
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err = p.submitOnce(ctx, in)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, core.ErrConflict) {
			return AttemptResult{}, err
		}
		p.Log.Warn().Err(err).Int("attempt", attempt).Msg("attempt pipeline conflict, retrying")
	}
	return AttemptResult{}, fmt.Errorf("submit_attempt exhausted retries: %w", err)
}

func (p *Pipeline) submitOnce(ctx context.Context, in AttemptInput) (AttemptResult, error) {
	now := p.now()

	// Step 1: load question, compute outcome facts.
	question, err := p.Questions.Get(ctx, in.QuestionID)
	if err != nil {
		return AttemptResult{}, fmt.Errorf("load question %s: %w", in.QuestionID, err)
	}
	isCorrect := in.AnsweredChoice == question.CorrectChoice
	wasOvertime := in.TimeSpentSec > question.TimeBudgetSec

	// Step 2: snapshot all relevant rating records.
	scopeKeys := scopesForQuestion(question)
	snapshots := make(map[core.ScopeType]core.Rating, len(scopeKeys))
	for _, sk := range scopeKeys {
		r, err := p.Ratings.Get(ctx, in.UserID, sk)
		if err != nil {
			return AttemptResult{}, fmt.Errorf("snapshot rating %s: %w", sk.ScopeType, err)
		}
		snapshots[sk.ScopeType] = r
	}

	// Step 3: compute new ratings per scope, then persist all four.
	deltas := make(map[core.ScopeType]int, len(snapshots))
	var primaryExpectedWinRate float64
	for scopeType, snap := range snapshots {
		upd, err := rating.Update(rating.UpdateInput{
			Snapshot:           snap,
			OpponentDifficulty: question.DifficultyRating,
			Correct:            isCorrect,
			TimeSpentSec:       in.TimeSpentSec,
			TimeBudgetSec:      question.TimeBudgetSec,
		})
		if err != nil {
			return AttemptResult{}, fmt.Errorf("compute rating update %s: %w", scopeType, err)
		}
		if scopeType == core.ScopeGlobal {
			primaryExpectedWinRate = upd.E
		}
		deltas[scopeType] = upd.Delta

		if err := p.persistRating(ctx, upd.New); err != nil {
			return AttemptResult{}, err
		}
		if p.Metrics != nil {
			p.Metrics.RatingDelta.WithLabelValues(string(scopeType)).Observe(float64(upd.Delta))
			p.Metrics.RatingUpdates.WithLabelValues(string(scopeType)).Inc()
		}
	}

	// Step 4: update atom mastery for each atom linked to the question.
	masteryByAtom := make(map[core.AtomID]core.AtomMastery, len(question.Atoms))
	newlyMastered := make([]core.AtomID, 0)
	for atomID := range question.Atoms {
		m, err := p.getOrCreateMastery(ctx, in.UserID, atomID)
		if err != nil {
			return AttemptResult{}, err
		}
		wasAlreadyMastered := m.MasteryLevel == core.MasteryMastered
		updated := updateMastery(m, isCorrect, p.masteryParams())
		if err := p.Mastery.Put(ctx, updated); err != nil {
			return AttemptResult{}, fmt.Errorf("persist mastery %s: %w", atomID, core.ErrPersistenceFailure)
		}
		masteryByAtom[atomID] = updated
		if !wasAlreadyMastered && updated.MasteryLevel == core.MasteryMastered {
			newlyMastered = append(newlyMastered, atomID)
		}
	}

	// Step 5: outcome, difficulty match, XP.
	outcome := progression.ClassifyOutcome(isCorrect, wasOvertime, in.WasGuessed, primaryExpectedWinRate)
	matchCategory := string(difficulty.ClassifyMatch(snapshots[core.ScopeGlobal].Value, question.DifficultyRating))
	globalRating := snapshots[core.ScopeGlobal]
	xp := progression.XPForAttempt(progression.XPInput{
		Outcome:         outcome,
		DifficultyMatch: matchCategory,
		CurrentStreak:   globalRating.CurrentStreak,
		ExpectedWinRate: primaryExpectedWinRate,
		TargetWinRate:   difficulty.TargetWinRate(in.Mode),
	})

	userState, err := p.UserState.Get(ctx, in.UserID)
	if err != nil {
		return AttemptResult{}, fmt.Errorf("load user state: %w", err)
	}
	levels := p.levelTable()
	newTotalXP, levelEvents := levels.ApplyXP(userState.TotalXP, userState.CurrentLevel, xp, gateNames(userState.PassedGateIDs))
	userState.TotalXP = newTotalXP
	var newLevel *int
	if len(levelEvents) > 0 {
		lvl := levelEvents[len(levelEvents)-1].ToLevel
		userState.CurrentLevel = lvl
		newLevel = &lvl
	}

	// Step 6: evaluate default gate for any atom that just mastered.
	var passedGates []core.GateID
	gateXP := 0
	for _, atomID := range newlyMastered {
		userState.MasteredAtomIDs[atomID] = struct{}{}
		gateID := core.GateID(fmt.Sprintf("mastery:%s", atomID))
		g, ok := p.Gates[gateID]
		if !ok {
			g = p.masteryParams().Gate(gateID, atomID)
		}
		stats := p.statsForGate(g, masteryByAtom)
		progress := gate.Evaluate(g.Requirement, stats)
		if p.Metrics != nil {
			p.Metrics.GateEvaluations.WithLabelValues(string(gateID), string(progress.Status)).Inc()
		}
		if progress.Status == core.StatusPassed {
			if _, already := userState.PassedGateIDs[gateID]; !already {
				userState.PassedGateIDs[gateID] = struct{}{}
				passedGates = append(passedGates, gateID)
				gateXP += g.XPReward
			}
		}
	}
	if gateXP > 0 {
		// Gate rewards go through the same leveling path as attempt XP
		// so current_level stays consistent with total_xp; the freshly
		// passed gates count toward any level-gate requirements.
		total, gateEvents := levels.ApplyXP(userState.TotalXP, userState.CurrentLevel, gateXP, gateNames(userState.PassedGateIDs))
		userState.TotalXP = total
		levelEvents = append(levelEvents, gateEvents...)
		if len(gateEvents) > 0 {
			lvl := gateEvents[len(gateEvents)-1].ToLevel
			userState.CurrentLevel = lvl
			newLevel = &lvl
		}
	}

	if err := p.UserState.Put(ctx, userState); err != nil {
		return AttemptResult{}, fmt.Errorf("persist user state: %w", core.ErrPersistenceFailure)
	}
	if p.Metrics != nil {
		p.Metrics.XPAwarded.Observe(float64(xp))
		for _, ev := range levelEvents {
			p.Metrics.LevelUps.WithLabelValues(fmt.Sprintf("%d", ev.ToLevel)).Inc()
		}
	}

	// Step 7: update/enqueue SR state for each atom.
	newReviewDates := make(map[core.AtomID]time.Time, len(question.Atoms))
	if p.Scheduler != nil {
		quality := review.OutcomeToQuality(string(outcome))
		for atomID := range question.Atoms {
			itemID := fmt.Sprintf("%s:%s", in.UserID, atomID)
			item, err := p.Scheduler.EnsureItem(ctx, uuid.NewString(), in.UserID, core.ReviewItemAtom, itemID)
			if err != nil {
				return AttemptResult{}, fmt.Errorf("ensure review item %s: %w", atomID, err)
			}
			next, err := review.ProcessReview(item, quality, now)
			if err != nil {
				return AttemptResult{}, fmt.Errorf("process review %s: %w", atomID, err)
			}
			if err := p.Scheduler.Reviews.Upsert(ctx, next); err != nil {
				return AttemptResult{}, fmt.Errorf("persist review item %s: %w", atomID, core.ErrPersistenceFailure)
			}
			newReviewDates[atomID] = next.NextReviewDate
			if p.Metrics != nil {
				p.Metrics.ReviewsProcessed.WithLabelValues(qualityBucket(quality)).Inc()
			}
		}
	}

	// Append the immutable attempt record.
	attemptRecord := core.Attempt{
		ID:             uuid.NewString(),
		QuestionID:     question.ID,
		UserID:         in.UserID,
		AnsweredChoice: in.AnsweredChoice,
		IsCorrect:      isCorrect,
		TimeSpentSec:   in.TimeSpentSec,
		TimeBudgetSec:  question.TimeBudgetSec,
		WasGuessed:     in.WasGuessed,
		WasOvertime:    wasOvertime,
		CreatedAt:      now,
	}
	if err := p.Attempts.Append(ctx, attemptRecord); err != nil {
		return AttemptResult{}, fmt.Errorf("append attempt: %w", core.ErrPersistenceFailure)
	}
	if err := p.Questions.IncrementTimesServed(ctx, question.ID); err != nil {
		p.Log.Warn().Err(err).Str("question_id", question.ID).Msg("failed to increment times served")
	}

	p.Log.Debug().
		Str("user_id", in.UserID).
		Str("question_id", question.ID).
		Bool("correct", isCorrect).
		Str("outcome", string(outcome)).
		Int("xp", xp).
		Int("global_delta", deltas[core.ScopeGlobal]).
		Msg("attempt processed")

	return AttemptResult{
		IsCorrect:           isCorrect,
		CorrectAnswer:       question.CorrectChoice,
		OutcomeType:         outcome,
		RatingDeltasByScope: deltas,
		XPAwarded:           xp,
		NewLevel:            newLevel,
		PassedGates:         passedGates,
		NewReviewDates:      newReviewDates,
	}, nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) levelTable() *progression.Table {
	if p.Levels != nil {
		return p.Levels
	}
	return progression.DefaultTable()
}

func (p *Pipeline) masteryParams() gate.MasteryGateParams {
	if p.MasteryGate == (gate.MasteryGateParams{}) {
		return gate.DefaultMasteryGateParams()
	}
	return p.MasteryGate
}

func gateNames(ids map[core.GateID]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for id := range ids {
		out[string(id)] = struct{}{}
	}
	return out
}

func (p *Pipeline) persistRating(ctx context.Context, r core.Rating) error {
	if p.RatingsGuard != nil {
		return p.RatingsGuard.Run(ctx, func(ctx context.Context) error {
			return p.Ratings.Put(ctx, r)
		})
	}
	return p.Ratings.Put(ctx, r)
}

func (p *Pipeline) getOrCreateMastery(ctx context.Context, userID string, atomID core.AtomID) (core.AtomMastery, error) {
	m, err := p.Mastery.Get(ctx, userID, atomID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.AtomMastery{}, fmt.Errorf("load mastery %s: %w", atomID, err)
	}
	return core.AtomMastery{UserID: userID, AtomID: atomID, MasteryLevel: core.MasteryLearning}, nil
}

func updateMastery(m core.AtomMastery, isCorrect bool, params gate.MasteryGateParams) core.AtomMastery {
	m.AttemptsTotal++
	if isCorrect {
		m.AttemptsCorrect++
	}
	m.RecentAttempts = append(append([]bool{}, m.RecentAttempts...), isCorrect)
	if len(m.RecentAttempts) > core.RecentWindow {
		m.RecentAttempts = m.RecentAttempts[len(m.RecentAttempts)-core.RecentWindow:]
	}

	acc := m.Accuracy()
	switch {
	case acc >= params.AccuracyThreshold && m.AttemptsTotal >= params.MinAttempts && m.BestStreak() >= params.MinStreak:
		m.MasteryLevel = core.MasteryMastered
	case m.AttemptsTotal >= 3:
		m.MasteryLevel = core.MasteryReviewing
	default:
		m.MasteryLevel = core.MasteryLearning
	}
	return m
}

// statsForGate builds the gate.AtomStat slice a requirement tree needs
// from the mastery records touched by this attempt.
func (p *Pipeline) statsForGate(g gate.Gate, masteryByAtom map[core.AtomID]core.AtomMastery) []gate.AtomStat {
	ids := g.AtomIDs
	if ids == nil {
		ids = make(map[core.AtomID]struct{}, len(masteryByAtom))
		for a := range masteryByAtom {
			ids[a] = struct{}{}
		}
	}
	stats := make([]gate.AtomStat, 0, len(ids))
	for a := range ids {
		m, ok := masteryByAtom[a]
		if !ok {
			continue
		}
		stats = append(stats, gate.AtomStat{
			AtomID:          a,
			AttemptsTotal:   m.AttemptsTotal,
			AttemptsCorrect: m.AttemptsCorrect,
			RecentResults:   m.RecentAttempts,
		})
	}
	return stats
}

func qualityBucket(q int) string {
	return fmt.Sprintf("q%d", q)
}
