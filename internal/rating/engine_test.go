package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

func TestExpectedWinRate_EqualRatingsIsHalf(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedWinRate(500, 500), 1e-9)
}

func TestExpectedWinRate_Symmetry(t *testing.T) {
	e := ExpectedWinRate(600, 500)
	eInverse := ExpectedWinRate(500, 600)
	assert.InDelta(t, 1.0, e+eInverse, 1e-9)
	assert.Greater(t, e, 0.5)
}

func TestKFactor_Tiers(t *testing.T) {
	cases := []struct {
		name        string
		gamesPlayed int
		deviation   int
		want        int
	}{
		{"new_player_mid_deviation", 5, 150, 48},
		{"establishing_mid_deviation", 20, 150, 32},
		{"confident_mid_deviation", 50, 150, 24},
		{"stable_mid_deviation", 200, 150, 16},
		{"provisional_high_deviation_stays_unscaled", 5, 300, 48},
		{"establishing_high_deviation_scaled_up", 20, 300, 40},
		{"stable_low_deviation_scaled_down", 200, 40, 13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := KFactor(tc.gamesPlayed, tc.deviation)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 12)
			assert.LessOrEqual(t, got, 64)
		})
	}
}

func TestClassifyTiming(t *testing.T) {
	cases := []struct {
		ratio float64
		want  TimingCategory
	}{
		{0.2, TimingVeryFast},
		{0.4, TimingVeryFast},
		{0.5, TimingFast},
		{0.8, TimingNormal},
		{1.0, TimingNormal},
		{1.2, TimingSlow},
		{2.0, TimingVerySlow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyTiming(tc.ratio))
	}
}

func TestAntiGrindMultiplier_HighExpectedWinRateSuppression(t *testing.T) {
	mult := AntiGrindMultiplier(0.9, nil, nil, 0)
	assert.InDelta(t, 0.5, mult, 1e-9)
}

func TestAntiGrindMultiplier_SameBandStreak(t *testing.T) {
	last10 := []bool{true, true, true, true, true, true, true, true, true}
	bands := []int{3, 3, 3, 3, 3, 3, 3, 3, 3}
	mult := AntiGrindMultiplier(0.5, last10, bands, 3)
	assert.InDelta(t, 0.75, mult, 1e-9)
}

func TestClassifyMomentum(t *testing.T) {
	assert.Equal(t, MomentumHot, ClassifyMomentum(core.StreakWin, 5))
	assert.Equal(t, MomentumWarm, ClassifyMomentum(core.StreakWin, 3))
	assert.Equal(t, MomentumNone, ClassifyMomentum(core.StreakWin, 2))
	assert.Equal(t, MomentumSlump, ClassifyMomentum(core.StreakLoss, 6))
	assert.Equal(t, MomentumCold, ClassifyMomentum(core.StreakLoss, 3))
}

func TestUpdate_InvalidTimeBudget(t *testing.T) {
	_, err := Update(UpdateInput{
		Snapshot:      core.NewRating("u1", core.ScopeKey{ScopeType: core.ScopeGlobal}),
		TimeBudgetSec: 0,
	})
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestUpdate_InvalidScope(t *testing.T) {
	snap := core.NewRating("u1", core.ScopeKey{ScopeType: "bogus"})
	_, err := Update(UpdateInput{Snapshot: snap, TimeBudgetSec: 60, TimeSpentSec: 30})
	require.ErrorIs(t, err, core.ErrInvalidScope)
}

func TestUpdate_EqualRatingWin(t *testing.T) {
	snap := core.NewRating("u1", core.ScopeKey{ScopeType: core.ScopeGlobal})
	result, err := Update(UpdateInput{
		Snapshot:           snap,
		OpponentDifficulty: 500,
		Correct:            true,
		TimeSpentSec:       60,
		TimeBudgetSec:      120,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.E, 1e-9)
	// First game at equal ratings: K=48, raw +24, timing fast x1.05,
	// round(25.2) = 25.
	assert.Equal(t, 48, result.K)
	assert.Equal(t, 25, result.Delta)
	assert.Equal(t, 525, result.New.Value)
	assert.Equal(t, 1, result.New.GamesPlayed)
	assert.Equal(t, 1, result.New.GamesWon)
	assert.Equal(t, core.StreakWin, result.New.StreakType)
	assert.Equal(t, 1, result.New.CurrentStreak)
}

func TestUpdate_UpsetLossDampedByAntiGrindOnlyOnGain(t *testing.T) {
	snap := core.NewRating("u1", core.ScopeKey{ScopeType: core.ScopeGlobal})
	snap.Value = 700
	result, err := Update(UpdateInput{
		Snapshot:           snap,
		OpponentDifficulty: 300,
		Correct:            false,
		TimeSpentSec:       60,
		TimeBudgetSec:      120,
	})
	require.NoError(t, err)
	assert.Negative(t, result.Delta)
	assert.Equal(t, core.StreakLoss, result.New.StreakType)
}

func TestUpdate_DeltaNeverExceedsOneAndHalfK(t *testing.T) {
	snap := core.NewRating("u1", core.ScopeKey{ScopeType: core.ScopeGlobal})
	snap.Value = 900
	result, err := Update(UpdateInput{
		Snapshot:           snap,
		OpponentDifficulty: 100,
		Correct:            true,
		TimeSpentSec:       30,
		TimeBudgetSec:      120,
	})
	require.NoError(t, err)
	maxAbs := 1.5 * float64(result.K)
	assert.LessOrEqual(t, math.Abs(float64(result.Delta)), maxAbs)
}

func TestUpdate_RatingClampedToBounds(t *testing.T) {
	snap := core.NewRating("u1", core.ScopeKey{ScopeType: core.ScopeGlobal})
	snap.Value = core.MaxRating
	result, err := Update(UpdateInput{
		Snapshot:           snap,
		OpponentDifficulty: core.MinRating,
		Correct:            true,
		TimeSpentSec:       30,
		TimeBudgetSec:      120,
	})
	require.NoError(t, err)
	assert.Equal(t, core.MaxRating, result.New.Value)
	assert.Equal(t, core.MaxRating, result.New.PeakRating)
}

func TestUpdate_MaintainsDifficultyBandWindow(t *testing.T) {
	snap := core.NewRating("u1", core.ScopeKey{ScopeType: core.ScopeGlobal})
	result, err := Update(UpdateInput{
		Snapshot:           snap,
		OpponentDifficulty: 450,
		Correct:            true,
		TimeSpentSec:       60,
		TimeBudgetSec:      120,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, result.New.Last10Bands)
	assert.Len(t, result.New.Last10Results, 1)

	// The band window evicts in lockstep with the results window.
	snap = result.New
	for i := 0; i < core.RecentWindow+3; i++ {
		next, err := Update(UpdateInput{
			Snapshot:           snap,
			OpponentDifficulty: 450,
			Correct:            true,
			TimeSpentSec:       60,
			TimeBudgetSec:      120,
		})
		require.NoError(t, err)
		snap = next.New
	}
	assert.Len(t, snap.Last10Bands, core.RecentWindow)
	assert.Len(t, snap.Last10Results, core.RecentWindow)
}

func TestEloToGmat_AnchorRoundTrip(t *testing.T) {
	for _, elo := range []int{100, 300, 500, 700, 900} {
		gmat := EloToGmat(elo)
		back := GmatToElo(gmat)
		assert.InDelta(t, elo, back, 1)
	}
}

func TestEloToGmat_ClampsOutsideAnchorRange(t *testing.T) {
	assert.Equal(t, EloToGmat(50), EloToGmat(100))
	assert.Equal(t, EloToGmat(1000), EloToGmat(900))
}
