package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

func TestDefaultMasteryGate_WorkedExamplePasses(t *testing.T) {
	atomID := core.AtomID("fractions")
	g := DefaultMasteryGate("mastery:fractions", atomID)

	stats := []AtomStat{
		{
			AtomID:          atomID,
			AttemptsTotal:   6,
			AttemptsCorrect: 5,
			RecentResults:   []bool{false, true, true, true, true, true},
		},
	}

	progress := Evaluate(g.Requirement, stats)
	assert.Equal(t, core.StatusPassed, progress.Status)
	assert.Equal(t, float64(100), progress.PercentComplete)
}

func TestEvaluateAccuracy_BelowThresholdIsInProgress(t *testing.T) {
	req := Requirement{Kind: KindAccuracy, Threshold: 0.80, MinAttempts: 5}
	stats := []AtomStat{{AttemptsTotal: 5, AttemptsCorrect: 3, RecentResults: []bool{true, true, true, false, false}}}

	progress := Evaluate(req, stats)
	assert.Equal(t, core.StatusInProgress, progress.Status)
	assert.InDelta(t, 0.6, progress.CurrentValue, 1e-9)
}

func TestEvaluateAccuracy_BelowMinAttemptsNeverPasses(t *testing.T) {
	req := Requirement{Kind: KindAccuracy, Threshold: 0.80, MinAttempts: 5}
	stats := []AtomStat{{AttemptsTotal: 2, AttemptsCorrect: 2, RecentResults: []bool{true, true}}}

	progress := Evaluate(req, stats)
	assert.NotEqual(t, core.StatusPassed, progress.Status)
}

func TestEvaluateVolume(t *testing.T) {
	req := Requirement{Kind: KindVolume, Threshold: 10}
	stats := []AtomStat{{AttemptsTotal: 10, AttemptsCorrect: 8}}

	progress := Evaluate(req, stats)
	assert.Equal(t, core.StatusPassed, progress.Status)
	assert.Equal(t, float64(10), progress.CurrentValue)
}

func TestEvaluateStreak(t *testing.T) {
	req := Requirement{Kind: KindStreak, Threshold: 3}
	stats := []AtomStat{{RecentResults: []bool{true, false, true, true, true}}}

	progress := Evaluate(req, stats)
	assert.Equal(t, core.StatusPassed, progress.Status)
	assert.Equal(t, float64(3), progress.CurrentValue)
}

func TestEvaluateComposite_AllRequiresEveryChild(t *testing.T) {
	req := Requirement{
		Kind:        KindComposite,
		PassingMode: core.PassingAll,
		Requirements: []Requirement{
			{Kind: KindVolume, Threshold: 5},
			{Kind: KindStreak, Threshold: 10},
		},
	}
	stats := []AtomStat{{AttemptsTotal: 5, RecentResults: []bool{true, true, true}}}

	progress := Evaluate(req, stats)
	assert.NotEqual(t, core.StatusPassed, progress.Status)
	assert.Len(t, progress.Details, 2)
}

func TestEvaluateComposite_AnyPassesOnOneChild(t *testing.T) {
	req := Requirement{
		Kind:        KindComposite,
		PassingMode: core.PassingAny,
		Requirements: []Requirement{
			{Kind: KindVolume, Threshold: 100},
			{Kind: KindStreak, Threshold: 2},
		},
	}
	stats := []AtomStat{{AttemptsTotal: 1, RecentResults: []bool{true, true, true}}}

	progress := Evaluate(req, stats)
	assert.Equal(t, core.StatusPassed, progress.Status)
}

func TestEvaluate_UnknownKindLocksGracefully(t *testing.T) {
	progress := Evaluate(Requirement{Kind: "bogus"}, nil)
	assert.Equal(t, core.StatusLocked, progress.Status)
}
