package difficulty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetBand_Build(t *testing.T) {
	band := TargetBand(500, ModeBuild)
	assert.Equal(t, Band{Low: 350, High: 500}, band)
}

func TestTargetBand_ClampsToRatingBounds(t *testing.T) {
	band := TargetBand(150, ModeBuild)
	assert.GreaterOrEqual(t, band.Low, 100)
	band = TargetBand(850, ModeDiagnostic)
	assert.LessOrEqual(t, band.High, 900)
}

func TestMatchScore_PerfectMatchIsHundred(t *testing.T) {
	// ModeDiagnostic targets a 0.5 win rate, which ExpectedWinRate(500,
	// 500) hits exactly.
	score := MatchScore(500, 500, ModeDiagnostic)
	assert.Equal(t, 100, score)
}

func TestClassifyMatch_Buckets(t *testing.T) {
	cases := []struct {
		diff int
		want MatchCategory
	}{
		{-150, MatchEasy},
		{-100, MatchOptimal},
		{0, MatchOptimal},
		{100, MatchOptimal},
		{150, MatchHard},
		{250, MatchStretch},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyMatch(500, 500+tc.diff))
	}
}

func TestFindDifficultyForWinRate_InverseOfExpectedWinRate(t *testing.T) {
	d := FindDifficultyForWinRate(500, 0.5)
	assert.Equal(t, 500, d)
}

func TestFindDifficultyForWinRate_ClampsExtremeTargets(t *testing.T) {
	low := FindDifficultyForWinRate(500, 0.01)
	high := FindDifficultyForWinRate(500, 0.99)
	assert.GreaterOrEqual(t, low, 100)
	assert.LessOrEqual(t, high, 900)
}

func TestAppropriate_PerModeAdmissibleRange(t *testing.T) {
	assert.True(t, Appropriate(ModeBuild, 0.75))
	assert.False(t, Appropriate(ModeBuild, 0.3))

	assert.True(t, Appropriate(ModeProve, 0.5))
	assert.False(t, Appropriate(ModeProve, 0.9))

	assert.True(t, Appropriate(ModeReview, 0.8))
	assert.False(t, Appropriate(ModeReview, 0.3))

	assert.True(t, Appropriate(ModeDiagnostic, 0.01))
}
