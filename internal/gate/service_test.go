package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/memrepo"
)

func TestServiceResolve_UnknownGateIsNotFound(t *testing.T) {
	svc := NewService(nil, memrepo.NewMastery(), nil)
	_, err := svc.Resolve("no-such-gate")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestServiceResolve_SynthesizesDefaultMasteryGate(t *testing.T) {
	svc := NewService(nil, memrepo.NewMastery(), nil)
	g, err := svc.Resolve("mastery:fractions")
	require.NoError(t, err)
	assert.Equal(t, core.GateID("mastery:fractions"), g.ID)
	assert.Equal(t, 100, g.XPReward)
}

func TestServiceEvaluateGate_PassesOnMasteredAtom(t *testing.T) {
	mastery := memrepo.NewMastery()
	require.NoError(t, mastery.Put(context.Background(), core.AtomMastery{
		UserID: "u1", AtomID: "fractions",
		AttemptsTotal: 6, AttemptsCorrect: 5,
		RecentAttempts: []bool{false, true, true, true, true, true},
		MasteryLevel:   core.MasteryMastered,
	}))

	svc := NewService(nil, mastery, memrepo.NewAttempts())
	ev, err := svc.EvaluateGate(context.Background(), "u1", "mastery:fractions")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPassed, ev.Progress.Status)
}

func TestServiceEvaluateGate_TimingRequirementUsesAttemptBudgets(t *testing.T) {
	questions := memrepo.NewQuestions(core.Question{
		ID: "q1", SectionCode: "quant",
		Atoms:         map[core.AtomID]struct{}{"fractions": {}},
		CorrectChoice: "A", TimeBudgetSec: 120, DifficultyRating: 500,
	})
	attempts := memrepo.NewAttempts()
	attempts.Questions = questions

	// Three correct attempts: two within 1.0x budget, one at 1.4x.
	for i, spent := range []int{60, 100, 168} {
		require.NoError(t, attempts.Append(context.Background(), core.Attempt{
			ID: string(rune('a' + i)), QuestionID: "q1", UserID: "u1",
			IsCorrect: true, TimeSpentSec: spent, TimeBudgetSec: 120,
			CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}))
	}

	mastery := memrepo.NewMastery()
	require.NoError(t, mastery.Put(context.Background(), core.AtomMastery{
		UserID: "u1", AtomID: "fractions",
		AttemptsTotal: 3, AttemptsCorrect: 3,
		RecentAttempts: []bool{true, true, true},
		MasteryLevel:   core.MasteryLearning,
	}))

	gates := map[core.GateID]Gate{
		"timing-check": {
			ID:       "timing-check",
			Name:     "Pacing",
			AtomIDs:  map[core.AtomID]struct{}{"fractions": {}},
			XPReward: 50,
			Requirement: Requirement{
				Kind: KindTiming, Description: "2/3 within budget",
				Threshold: 0.66, BudgetMultiplier: 1.0,
				AtomIDs: map[core.AtomID]struct{}{"fractions": {}},
			},
		},
	}

	svc := NewService(gates, mastery, attempts)
	ev, err := svc.EvaluateGate(context.Background(), "u1", "timing-check")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPassed, ev.Progress.Status)
	assert.InDelta(t, 2.0/3.0, ev.Progress.CurrentValue, 1e-9)

	// Raising the multiplier to 1.5 brings the slow attempt within
	// budget too.
	gates["timing-check"] = func() Gate {
		g := gates["timing-check"]
		g.Requirement.BudgetMultiplier = 1.5
		return g
	}()
	ev, err = svc.EvaluateGate(context.Background(), "u1", "timing-check")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ev.Progress.CurrentValue, 1e-9)
}

func TestServiceGateSummary_AggregatesStatuses(t *testing.T) {
	mastery := memrepo.NewMastery()
	require.NoError(t, mastery.Put(context.Background(), core.AtomMastery{
		UserID: "u1", AtomID: "fractions",
		AttemptsTotal: 6, AttemptsCorrect: 5,
		RecentAttempts: []bool{false, true, true, true, true, true},
		MasteryLevel:   core.MasteryMastered,
	}))
	require.NoError(t, mastery.Put(context.Background(), core.AtomMastery{
		UserID: "u1", AtomID: "ratios",
		AttemptsTotal: 2, AttemptsCorrect: 1,
		RecentAttempts: []bool{true, false},
		MasteryLevel:   core.MasteryLearning,
	}))

	svc := NewService(nil, mastery, memrepo.NewAttempts())
	summary, err := svc.GateSummary(context.Background(), "u1",
		[]core.GateID{"mastery:fractions", "mastery:ratios", "mastery:untouched"})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.InProgress)
	assert.Equal(t, 1, summary.Locked)
	assert.Equal(t, 200, summary.XPAvailable)
}
