// Package selector implements the question selector: mode-specific
// distribution planning, candidate fetching via repo.QuestionRepo,
// composite per-candidate scoring,
// top-pool randomized selection, anti-repetition, and the
// review-mode override that consults the spaced-repetition scheduler
// first.
package selector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/cache"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/difficulty"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/rating"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/repo"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/review"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/telemetry"
)

// candidatePoolTTL bounds how long a cached candidate pool survives.
// Staleness between select and submit is acceptable and benign.
const candidatePoolTTL = 30 * time.Second

// SelectionReason tags why a candidate was chosen.
type SelectionReason string

const (
	ReasonNearRating  SelectionReason = "near_rating"
	ReasonStretch     SelectionReason = "stretch"
	ReasonWeakness    SelectionReason = "weakness"
	ReasonReviewDue   SelectionReason = "review_due"
	ReasonExploration SelectionReason = "exploration"
)

// Criteria is the input to Selector.Select.
type Criteria struct {
	Mode                  difficulty.Mode
	SectionCode           string
	QuestionTypeCode      string
	TargetAtomIDs         []core.AtomID
	ExcludeIDs            map[string]struct{}
	Count                 int
	WeaknessAtomIDs       map[core.AtomID]struct{}
	LearnerRating         int
	MaxSameAtomPerSession int // default 3 when 0
}

// SelectedQuestion is one output of selection.
type SelectedQuestion struct {
	Question core.Question
	Score    int
	Reason   SelectionReason
}

// RNG is a pluggable source of uniform integers so tests can inject a
// seeded generator.
type RNG interface {
	// Intn returns a uniform random integer in [0, n).
	Intn(n int) int
}

var planTable = map[difficulty.Mode]map[SelectionReason]float64{
	difficulty.ModeBuild: {
		ReasonNearRating: 0.60, ReasonStretch: 0.20, ReasonWeakness: 0.15, ReasonExploration: 0.05,
	},
	difficulty.ModeProve: {
		ReasonNearRating: 0.60, ReasonStretch: 0.20, ReasonWeakness: 0.15, ReasonExploration: 0.05,
	},
	difficulty.ModeReview: {
		ReasonNearRating: 0.70, ReasonWeakness: 0.20, ReasonExploration: 0.10,
	},
	difficulty.ModeDiagnostic: {
		ReasonNearRating: 0.40, ReasonStretch: 0.30, ReasonWeakness: 0.20, ReasonExploration: 0.10,
	},
}

// slotOrder fixes the fill order so selection is deterministic under a
// seeded RNG; the near-rating bucket fills first since it carries the
// largest plan share in every mode.
var slotOrder = []SelectionReason{ReasonNearRating, ReasonStretch, ReasonWeakness, ReasonExploration}

// plan returns the ceil-rounded slot count per reason for mode. The
// plan may sum slightly above count; the caller truncates back to
// exactly count after selection.
func (s *Selector) plan(mode difficulty.Mode, count int) map[SelectionReason]int {
	ratios, ok := s.Plan[mode]
	if !ok {
		ratios = planTable[mode]
	}
	out := make(map[SelectionReason]int)
	for reason, ratio := range ratios {
		out[reason] = int(math.Ceil(ratio * float64(count)))
	}
	return out
}

// Selector composes the difficulty matcher with repository queries and
// the mode-specific distribution plan.
type Selector struct {
	Questions repo.QuestionRepo
	Scheduler *review.Scheduler
	Rand      RNG

	// Mastery, when set, supplies the default weakness atom set (atoms
	// at mastery level learning or reviewing) for criteria that don't
	// specify one.
	Mastery repo.MasteryRepo

	// Plan overrides the built-in per-mode distribution ratios when
	// set; modes absent from it fall back to the built-in table.
	Plan map[difficulty.Mode]map[SelectionReason]float64

	// TopPoolMultiplier and RandomWindow tune the top-pool randomized
	// pick; zero values fall back to 3 and 5. DefaultMaxSameAtom is
	// the anti-repetition cap applied when the criteria leave it
	// unset; zero falls back to 3.
	TopPoolMultiplier  int
	RandomWindow       int
	DefaultMaxSameAtom int

	// Cache, when set, read-throughs candidate pool fetches.
	Cache   cache.Cache
	Metrics *telemetry.Registry
}

// NewSelector constructs a Selector.
func NewSelector(questions repo.QuestionRepo, scheduler *review.Scheduler, rng RNG) *Selector {
	return &Selector{Questions: questions, Scheduler: scheduler, Rand: rng}
}

// Select runs the full selection pipeline for one user.
func (s *Selector) Select(ctx context.Context, userID string, c Criteria) ([]SelectedQuestion, error) {
	if c.Count <= 0 {
		return nil, fmt.Errorf("count %d: %w", c.Count, core.ErrInvalidInput)
	}

	if s.Metrics != nil {
		start := time.Now()
		defer func() { s.Metrics.SelectionLatency.Observe(time.Since(start).Seconds()) }()
	}
	maxSameAtom := c.MaxSameAtomPerSession
	if maxSameAtom == 0 {
		maxSameAtom = s.DefaultMaxSameAtom
	}
	if maxSameAtom == 0 {
		maxSameAtom = 3
	}

	if c.WeaknessAtomIDs == nil && s.Mastery != nil {
		weak, err := s.defaultWeaknessAtoms(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.WeaknessAtomIDs = weak
	}

	var out []SelectedQuestion
	atomUsage := make(map[core.AtomID]int)
	picked := make(map[string]struct{})

	if c.Mode == difficulty.ModeReview && s.Scheduler != nil {
		due, err := s.Scheduler.Due(ctx, userID, core.ReviewItemQuestion, c.Count)
		if err != nil {
			return nil, fmt.Errorf("review override: %w", err)
		}
		for _, item := range due {
			if len(out) >= c.Count {
				break
			}
			q, err := s.Questions.Get(ctx, item.ItemID)
			if err != nil {
				continue
			}
			if _, dup := picked[q.ID]; dup {
				continue
			}
			if exceedsCap(q, atomUsage, maxSameAtom) {
				continue
			}
			addAtoms(q, atomUsage)
			picked[q.ID] = struct{}{}
			out = append(out, SelectedQuestion{Question: q, Score: 100, Reason: ReasonReviewDue})
		}
	}

	remaining := c.Count - len(out)
	if remaining <= 0 {
		return out[:c.Count], nil
	}

	candidates, err := s.fetchCandidates(ctx, userID, c)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return out, nil
	}

	scored := s.scoreCandidates(candidates, c)
	byReason := bucketByReason(scored, c.Mode, c.WeaknessAtomIDs)

	slots := s.plan(c.Mode, remaining)
	for _, reason := range slotOrder {
		n, ok := slots[reason]
		if !ok {
			continue
		}
		sel := s.pickFromPool(byReason[reason], n, reason, picked, atomUsage, maxSameAtom)
		out = append(out, sel...)
		if len(out) >= c.Count {
			break
		}
	}

	if len(out) > c.Count {
		out = out[:c.Count]
	}
	if s.Metrics != nil {
		for _, sel := range out {
			s.Metrics.SelectionsServed.WithLabelValues(string(c.Mode), string(sel.Reason)).Inc()
		}
	}
	return out, nil
}

// GetNext is a convenience wrapper for the get_next_question
// operation: selects a single question.
func (s *Selector) GetNext(ctx context.Context, userID string, mode difficulty.Mode, sectionCode string, excludeIDs map[string]struct{}, learnerRating int) (*SelectedQuestion, error) {
	results, err := s.Select(ctx, userID, Criteria{
		Mode:          mode,
		SectionCode:   sectionCode,
		ExcludeIDs:    excludeIDs,
		Count:         1,
		LearnerRating: learnerRating,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func (s *Selector) fetchCandidates(ctx context.Context, userID string, c Criteria) ([]core.Question, error) {
	var candidates []core.Question
	var err error

	if len(c.TargetAtomIDs) > 0 {
		candidates, err = s.Questions.FindByAtoms(ctx, c.TargetAtomIDs)
		if err != nil {
			return nil, fmt.Errorf("find by atoms: %w", err)
		}
	} else {
		poolKey := cache.SelectorPoolKey(userID, string(c.Mode), c.SectionCode)
		cacheHit := false
		if s.Cache != nil {
			var cached []core.Question
			if hit, _ := s.Cache.Get(ctx, poolKey, &cached); hit {
				candidates = cached
				cacheHit = true
			}
		}

		if !cacheHit {
			band := difficulty.TargetBand(c.LearnerRating, c.Mode)
			candidates, err = s.Questions.FindBySection(ctx, c.SectionCode, band.Low, band.High)
			if err != nil {
				return nil, fmt.Errorf("find by section: %w", err)
			}
			// Expand outward if fewer than count/2 results.
			attempts := 0
			for len(candidates) < c.Count/2 && attempts < 4 {
				band.Low = clampInt(band.Low-50, core.MinRating, core.MaxRating)
				band.High = clampInt(band.High+50, core.MinRating, core.MaxRating)
				candidates, err = s.Questions.FindBySection(ctx, c.SectionCode, band.Low, band.High)
				if err != nil {
					return nil, fmt.Errorf("find by section (expanded): %w", err)
				}
				attempts++
			}

			if s.Cache != nil {
				_ = s.Cache.Set(ctx, poolKey, candidates, candidatePoolTTL)
			}
		}
	}

	// Per-criteria filtering always runs after the (cacheable) fetch:
	// the cached pool is keyed only by (user, mode, section), so
	// exclusions and type filters must not be baked into it.
	seen := make(map[string]struct{}, len(candidates))
	out := make([]core.Question, 0, len(candidates))
	for _, q := range candidates {
		if _, excluded := c.ExcludeIDs[q.ID]; excluded {
			continue
		}
		if c.QuestionTypeCode != "" && q.QuestionTypeCode != c.QuestionTypeCode {
			continue
		}
		if !difficulty.Appropriate(c.Mode, rating.ExpectedWinRate(c.LearnerRating, q.DifficultyRating)) {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out, nil
}

type scoredCandidate struct {
	question core.Question
	score    int
	category difficulty.MatchCategory
}

func (s *Selector) scoreCandidates(candidates []core.Question, c Criteria) []scoredCandidate {
	target := difficulty.TargetWinRate(c.Mode)
	out := make([]scoredCandidate, 0, len(candidates))

	for _, q := range candidates {
		e := rating.ExpectedWinRate(c.LearnerRating, q.DifficultyRating)
		cat := difficulty.ClassifyMatch(c.LearnerRating, q.DifficultyRating)

		score := int(math.Round(math.Max(0, 50-math.Abs(e-target)*100)))
		score += modeMatchBonus(c.Mode, cat)

		if c.WeaknessAtomIDs != nil && q.IntersectsAtoms(c.WeaknessAtomIDs) {
			score += 20
		}

		switch {
		case q.TimesServed == 0:
			score += 15
		case q.TimesServed < 3:
			score += 10
		case q.TimesServed > 10:
			score -= 10
		}

		if q.IsVerified {
			score += 10
		}
		if q.QualityScore != nil {
			if *q.QualityScore >= 4.5 {
				score += 10
			} else if *q.QualityScore >= 4.0 {
				score += 5
			}
		}

		if q.Source == core.SourceSeeded {
			score += 10
		}

		out = append(out, scoredCandidate{question: q, score: score, category: cat})
	}

	return out
}

func modeMatchBonus(mode difficulty.Mode, cat difficulty.MatchCategory) int {
	switch {
	case mode == difficulty.ModeBuild && cat == difficulty.MatchEasy:
		return 30
	case mode == difficulty.ModeProve && cat == difficulty.MatchOptimal:
		return 30
	case mode == difficulty.ModeDiagnostic && cat == difficulty.MatchOptimal:
		return 30
	case mode == difficulty.ModeReview && cat == difficulty.MatchEasy:
		return 25
	case mode == difficulty.ModeProve && (cat == difficulty.MatchHard || cat == difficulty.MatchStretch):
		return 15
	default:
		return 0
	}
}

// bucketByReason assigns each scored candidate to the plan buckets it
// is eligible for: a difficulty-category bucket, plus the weakness
// bucket when it touches a weakness atom, plus the exploration bucket
// (exploration draws from the whole pool by design).
func bucketByReason(scored []scoredCandidate, mode difficulty.Mode, weakness map[core.AtomID]struct{}) map[SelectionReason][]scoredCandidate {
	out := make(map[SelectionReason][]scoredCandidate)
	for _, sc := range scored {
		reason := ReasonNearRating
		switch sc.category {
		case difficulty.MatchStretch, difficulty.MatchHard:
			reason = ReasonStretch
		case difficulty.MatchOptimal:
			reason = ReasonNearRating
		case difficulty.MatchEasy:
			if mode == difficulty.ModeReview {
				reason = ReasonNearRating
			} else {
				reason = ReasonExploration
			}
		}
		out[reason] = append(out[reason], sc)
		if weakness != nil && sc.question.IntersectsAtoms(weakness) {
			out[ReasonWeakness] = append(out[ReasonWeakness], sc)
		}
		if reason != ReasonExploration {
			out[ReasonExploration] = append(out[ReasonExploration], sc)
		}
	}
	for _, bucket := range out {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].score > bucket[j].score })
	}
	return out
}

// pickFromPool implements the top-pool randomized pick: the pool
// is sorted descending by the caller; take the top min(3*count, len),
// then repeatedly pick a uniform random index in the first
// min(5, remaining) and remove it. Candidates already selected this
// batch or that would exceed the per-session atom cap are skipped. The
// selection reason is the plan bucket the slot belongs to.
func (s *Selector) pickFromPool(pool []scoredCandidate, count int, reason SelectionReason, picked map[string]struct{}, atomUsage map[core.AtomID]int, maxSameAtom int) []SelectedQuestion {
	if count <= 0 || len(pool) == 0 {
		return nil
	}

	poolMult := s.TopPoolMultiplier
	if poolMult <= 0 {
		poolMult = 3
	}
	poolSize := poolMult * count
	if poolSize > len(pool) {
		poolSize = len(pool)
	}
	working := append([]scoredCandidate{}, pool[:poolSize]...)

	randomWindow := s.RandomWindow
	if randomWindow <= 0 {
		randomWindow = 5
	}

	var out []SelectedQuestion
	for len(out) < count && len(working) > 0 {
		window := randomWindow
		if window > len(working) {
			window = len(working)
		}
		idx := 0
		if s.Rand != nil && window > 1 {
			idx = s.Rand.Intn(window)
		}

		candidate := working[idx]
		working = append(working[:idx], working[idx+1:]...)

		if _, dup := picked[candidate.question.ID]; dup {
			continue
		}
		if exceedsCap(candidate.question, atomUsage, maxSameAtom) {
			continue
		}
		addAtoms(candidate.question, atomUsage)
		picked[candidate.question.ID] = struct{}{}
		out = append(out, SelectedQuestion{
			Question: candidate.question,
			Score:    candidate.score,
			Reason:   reason,
		})
	}
	return out
}

// defaultWeaknessAtoms derives the weakness set from mastery records at
// level learning or reviewing.
func (s *Selector) defaultWeaknessAtoms(ctx context.Context, userID string) (map[core.AtomID]struct{}, error) {
	records, err := s.Mastery.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list mastery for weakness targeting: %w", err)
	}
	out := make(map[core.AtomID]struct{})
	for _, m := range records {
		if m.MasteryLevel == core.MasteryLearning || m.MasteryLevel == core.MasteryReviewing {
			out[m.AtomID] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func exceedsCap(q core.Question, atomUsage map[core.AtomID]int, maxSameAtom int) bool {
	for a := range q.Atoms {
		if atomUsage[a]+1 > maxSameAtom {
			return true
		}
	}
	return false
}

func addAtoms(q core.Question, atomUsage map[core.AtomID]int) {
	for a := range q.Atoms {
		atomUsage[a]++
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
