// Package rating implements the adaptive-learning rating engine:
// expected win rate, K-factor tiers, timing/anti-grind/momentum
// multipliers, and the bounded per-scope rating update. Every
// exported function here is pure and non-suspending — no repository
// access happens in this package.
package rating

import (
	"fmt"
	"math"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// ExpectedWinRate computes E(Rp, Rq) = 1 / (1 + 10^((Rq-Rp)/400)).
// Monotone increasing in Rp-Rq; exactly 0.5 when Rp == Rq.
func ExpectedWinRate(rp, rq int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(rq-rp)/400.0))
}

// KFactor returns the base K-factor tier for gamesPlayed, then applies
// the deviation scaling, then clamps to [12, 64] and rounds to the
// nearest integer. The provisional tier (<10 games) uses its base K
// unscaled: deviation is still at its default there, and scaling it
// would push a first-game swing past the 48 the update contract is
// built around.
func KFactor(gamesPlayed, deviation int) int {
	var k float64
	switch {
	case gamesPlayed < 10:
		return 48
	case gamesPlayed < 30:
		k = 32
	case gamesPlayed < 100:
		k = 24
	default:
		k = 16
	}

	switch {
	case deviation > 200:
		k = math.Min(k*1.25, 64)
	case deviation < 50:
		k = math.Max(k*0.8, 12)
	}

	return int(math.Round(k))
}

// TimingCategory classifies a time ratio into one of the five timing
// buckets.
type TimingCategory string

const (
	TimingVeryFast TimingCategory = "very_fast"
	TimingFast     TimingCategory = "fast"
	TimingNormal   TimingCategory = "normal"
	TimingSlow     TimingCategory = "slow"
	TimingVerySlow TimingCategory = "very_slow"
)

// ClassifyTiming buckets ratio = timeSpent/timeBudget into a category.
func ClassifyTiming(ratio float64) TimingCategory {
	switch {
	case ratio <= 0.4:
		return TimingVeryFast
	case ratio <= 0.6:
		return TimingFast
	case ratio <= 1.0:
		return TimingNormal
	case ratio <= 1.5:
		return TimingSlow
	default:
		return TimingVerySlow
	}
}

// TimingMultiplier returns the rating-change multiplier for a timing
// category, conditioned on whether the attempt was correct.
func TimingMultiplier(cat TimingCategory, correct bool) float64 {
	switch cat {
	case TimingVeryFast:
		return 1.10
	case TimingFast:
		if correct {
			return 1.05
		}
		return 1.00
	case TimingNormal:
		return 1.00
	case TimingSlow:
		if correct {
			return 0.95
		}
		return 1.00
	case TimingVerySlow:
		if correct {
			return 0.85
		}
		return 1.00
	default:
		return 1.00
	}
}

// DifficultyBandKey buckets a difficulty rating into a coarse band used
// only for the anti-grind "same difficulty band" detector. Bands are
// 100-wide, matching the [MIN_RATING, MAX_RATING] span evenly.
func DifficultyBandKey(difficulty int) int {
	return difficulty / 100
}

// AntiGrindMultiplier computes the suppression multiplier applied to
// a positive raw change. last10 is the rating's Last10Results
// *before* this attempt is appended, each entry paired with the
// difficulty band of that attempt's question; grind detection only
// applies when this attempt itself raised the rating (raw > 0 is the
// caller's responsibility — this function assumes the delta is
// already known to be positive).
func AntiGrindMultiplier(expectedWinRate float64, last10 []bool, last10Bands []int, currentBand int) float64 {
	mult := 1.0
	if expectedWinRate > 0.85 {
		mult *= 0.5
	}

	if len(last10) >= 9 {
		correctInBand := 0
		n := len(last10)
		start := 0
		if n > core.RecentWindow {
			start = n - core.RecentWindow
		}
		for i := start; i < n; i++ {
			if i < len(last10Bands) && last10Bands[i] == currentBand && last10[i] {
				correctInBand++
			}
		}
		if correctInBand >= 9 {
			mult *= 0.75
		}
	}

	return mult
}

// Momentum classifies a post-attempt streak into a momentum state.
type Momentum string

const (
	MomentumHot   Momentum = "hot"
	MomentumWarm  Momentum = "warm"
	MomentumSlump Momentum = "slump"
	MomentumCold  Momentum = "cold"
	MomentumNone  Momentum = "none"
)

// ClassifyMomentum derives the momentum state from a streak type and
// length.
func ClassifyMomentum(streakType core.StreakType, streak int) Momentum {
	switch streakType {
	case core.StreakWin:
		if streak >= 5 {
			return MomentumHot
		}
		if streak >= 3 {
			return MomentumWarm
		}
	case core.StreakLoss:
		if streak >= 5 {
			return MomentumSlump
		}
		if streak >= 3 {
			return MomentumCold
		}
	}
	return MomentumNone
}

// MomentumMultiplier returns the multiplier a momentum state applies to
// a change of the given sign (positive deltas amplified by hot/warm,
// negative deltas amplified by slump/cold).
func MomentumMultiplier(m Momentum, positive bool) float64 {
	switch m {
	case MomentumHot:
		if positive {
			return 1.15
		}
	case MomentumWarm:
		if positive {
			return 1.05
		}
	case MomentumSlump:
		if !positive {
			return 1.15
		}
	case MomentumCold:
		if !positive {
			return 1.05
		}
	}
	return 1.0
}

// UpdateInput bundles the pre-attempt snapshot and attempt facts needed
// to compute one scope's rating update.
type UpdateInput struct {
	Snapshot           core.Rating
	OpponentDifficulty int
	Correct            bool
	TimeSpentSec       int
	TimeBudgetSec      int
}

// UpdateResult is the computed new rating record plus the raw facts a
// caller (the attempt pipeline) needs to report a delta.
type UpdateResult struct {
	New   core.Rating
	Delta int
	K     int
	E     float64
}

// Update computes the new rating for one scope from a pre-attempt
// snapshot. Returns core.ErrInvalidInput if TimeBudgetSec <= 0.
func Update(in UpdateInput) (UpdateResult, error) {
	if in.TimeBudgetSec <= 0 {
		return UpdateResult{}, fmt.Errorf("time budget %d: %w", in.TimeBudgetSec, core.ErrInvalidInput)
	}
	if !core.ValidScopeType(in.Snapshot.Scope.ScopeType) {
		return UpdateResult{}, fmt.Errorf("scope %q: %w", in.Snapshot.Scope.ScopeType, core.ErrInvalidScope)
	}

	snap := in.Snapshot
	k := KFactor(snap.GamesPlayed, snap.Deviation)
	e := ExpectedWinRate(snap.Value, in.OpponentDifficulty)

	actual := 0.0
	if in.Correct {
		actual = 1.0
	}

	raw := float64(k) * (actual - e)

	ratio := float64(in.TimeSpentSec) / float64(in.TimeBudgetSec)
	timingCat := ClassifyTiming(ratio)
	raw *= TimingMultiplier(timingCat, in.Correct)

	currentBand := DifficultyBandKey(in.OpponentDifficulty)
	if raw > 0 {
		raw *= AntiGrindMultiplier(e, snap.Last10Results, snap.Last10Bands, currentBand)
	}

	// Momentum is derived from the streak including this attempt's
	// result; the sign of raw tells us which side of momentum to apply.
	streakType, streak := nextStreak(snap.StreakType, snap.CurrentStreak, in.Correct)
	momentum := ClassifyMomentum(streakType, streak)
	raw *= MomentumMultiplier(momentum, raw > 0)

	maxAbs := 1.5 * float64(k)
	if raw > maxAbs {
		raw = maxAbs
	} else if raw < -maxAbs {
		raw = -maxAbs
	}

	delta := int(math.Round(raw))
	newValue := clamp(snap.Value+delta, core.MinRating, core.MaxRating)

	next := snap
	next.Value = newValue
	next.GamesPlayed = snap.GamesPlayed + 1
	if in.Correct {
		next.GamesWon = snap.GamesWon + 1
	}
	if newValue > next.PeakRating {
		next.PeakRating = newValue
	}

	next.Last10Results = pushWindow(snap.Last10Results, in.Correct, core.RecentWindow)
	next.Last10Bands = pushBandWindow(snap.Last10Bands, currentBand, core.RecentWindow)

	next.StreakType, next.CurrentStreak = streakType, streak
	next.Deviation = nextDeviation(snap.Deviation, next.GamesPlayed)
	next.Confidence = core.DeriveConfidence(next.GamesPlayed)

	return UpdateResult{New: next, Delta: delta, K: k, E: e}, nil
}

func nextStreak(prevType core.StreakType, prevStreak int, correct bool) (core.StreakType, int) {
	newType := core.StreakLoss
	if correct {
		newType = core.StreakWin
	}
	if prevType == newType {
		return newType, prevStreak + 1
	}
	return newType, 1
}

// nextDeviation applies a linear decay schedule converging to
// MinDeviation by 100 games played.
func nextDeviation(prevDeviation, gamesPlayed int) int {
	shrinkPerGame := float64(core.DefaultDeviation-core.MinDeviation) / 100.0
	target := float64(core.DefaultDeviation) - shrinkPerGame*float64(gamesPlayed)
	shrunk := int(math.Round(target))
	if shrunk < core.MinDeviation {
		shrunk = core.MinDeviation
	}
	if shrunk > prevDeviation {
		shrunk = prevDeviation
	}
	return clamp(shrunk, core.MinDeviation, core.MaxDeviation)
}

func pushWindow(window []bool, v bool, max int) []bool {
	next := append(append([]bool{}, window...), v)
	if len(next) > max {
		next = next[len(next)-max:]
	}
	return next
}

func pushBandWindow(window []int, v, max int) []int {
	next := append(append([]int{}, window...), v)
	if len(next) > max {
		next = next[len(next)-max:]
	}
	return next
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EloToGmat maps an ELO-like internal rating to its GMAT-scale
// display value via piecewise-linear interpolation between fixed
// anchors, clamping outside the anchor range.
func EloToGmat(elo int) float64 {
	anchors := eloGmatAnchors()
	if float64(elo) <= anchors[0][0] {
		return anchors[0][1]
	}
	last := anchors[len(anchors)-1]
	if float64(elo) >= last[0] {
		return last[1]
	}
	for i := 0; i < len(anchors)-1; i++ {
		x0, y0 := anchors[i][0], anchors[i][1]
		x1, y1 := anchors[i+1][0], anchors[i+1][1]
		if float64(elo) >= x0 && float64(elo) <= x1 {
			t := (float64(elo) - x0) / (x1 - x0)
			return y0 + t*(y1-y0)
		}
	}
	return last[1]
}

// GmatToElo is the inverse piecewise-linear interpolation, mapping a
// GMAT-scale score back to the internal ELO-like rating.
func GmatToElo(gmat float64) int {
	anchors := eloGmatAnchors()
	if gmat <= anchors[0][1] {
		return int(math.Round(anchors[0][0]))
	}
	last := anchors[len(anchors)-1]
	if gmat >= last[1] {
		return int(math.Round(last[0]))
	}
	for i := 0; i < len(anchors)-1; i++ {
		x0, y0 := anchors[i][0], anchors[i][1]
		x1, y1 := anchors[i+1][0], anchors[i+1][1]
		if gmat >= y0 && gmat <= y1 {
			t := (gmat - y0) / (y1 - y0)
			return int(math.Round(x0 + t*(x1-x0)))
		}
	}
	return int(math.Round(last[0]))
}

func eloGmatAnchors() [][2]float64 {
	return [][2]float64{
		{100, 200}, {200, 300}, {300, 400}, {400, 480}, {500, 550},
		{600, 620}, {700, 690}, {800, 750}, {900, 800},
	}
}
